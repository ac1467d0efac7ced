package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizerCountsPerEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummarizer(slog.New(slog.NewJSONHandler(&buf, nil)))
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.Record(CompReconcile, "poll_tick", slog.String("path", "a"))
	clock = clock.Add(2 * time.Second)
	s.Record(CompReconcile, "poll_tick", slog.String("path", "b"))
	s.Record(CompHelper, "stdout_line")

	got := s.Flush()
	require.Len(t, got, 2)
	assert.Equal(t, CompHelper, got[0].Component)
	assert.EqualValues(t, 1, got[0].Count)
	assert.Equal(t, "poll_tick", got[1].Event)
	assert.EqualValues(t, 2, got[1].Count)
	assert.Equal(t, 2*time.Second, got[1].Last.Sub(got[1].First))
	assert.Equal(t, "b", got[1].Fields[0].Value.String())

	assert.Equal(t, 2, strings.Count(buf.String(), `"msg":"event_summary"`))
	assert.Empty(t, s.Flush())
}

func TestSummarizerNilLogger(t *testing.T) {
	s := NewSummarizer(nil)
	s.Record(CompToggle, "press")
	assert.Len(t, s.Flush(), 1)
}

func TestSummarizerRunFlushesOnTick(t *testing.T) {
	var out syncBuffer
	s := NewSummarizer(slog.New(slog.NewJSONHandler(&out, nil)))
	s.Record(CompReconcile, "poll_tick")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "event_summary")
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
