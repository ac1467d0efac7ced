package logging

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Summary is the count of one event over a window.
type Summary struct {
	Component string
	Event     string
	Count     int64
	First     time.Time
	Last      time.Time
	Fields    []slog.Attr // from the latest occurrence
}

type summaryKey struct{ component, event string }

// Summarizer counts repeated events (reconciler polls, helper chatter) and
// logs one "event_summary" record per event when flushed.
type Summarizer struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[summaryKey]*Summary
}

// NewSummarizer returns a summarizer writing to logger. A nil logger
// drops summaries on flush.
func NewSummarizer(logger *slog.Logger) *Summarizer {
	return &Summarizer{
		logger:  logger,
		now:     time.Now,
		pending: make(map[summaryKey]*Summary),
	}
}

// Record counts one occurrence of event.
func (s *Summarizer) Record(component, event string, fields ...slog.Attr) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	k := summaryKey{component, event}
	sum, ok := s.pending[k]
	if !ok {
		sum = &Summary{Component: component, Event: event, First: now}
		s.pending[k] = sum
	}
	sum.Count++
	sum.Last = now
	if len(fields) > 0 {
		sum.Fields = fields
	}
}

// Flush logs and clears the pending counts. It returns what was logged,
// sorted by component then event.
func (s *Summarizer) Flush() []Summary {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[summaryKey]*Summary)
	s.mu.Unlock()

	out := make([]Summary, 0, len(pending))
	for _, sum := range pending {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Component != out[j].Component {
			return out[i].Component < out[j].Component
		}
		return out[i].Event < out[j].Event
	})

	if s.logger == nil {
		return out
	}
	for _, sum := range out {
		attrs := []any{
			slog.String("component", sum.Component),
			slog.String("event", sum.Event),
			slog.Int64("count", sum.Count),
			slog.Duration("span", sum.Last.Sub(sum.First)),
		}
		for _, f := range sum.Fields {
			attrs = append(attrs, f)
		}
		s.logger.Info("event_summary", attrs...)
	}
	return out
}

// Run flushes every interval until ctx is done. The final flush is left
// to the caller.
func (s *Summarizer) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Flush()
		}
	}
}
