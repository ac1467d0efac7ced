package recorder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowork/flowork-deck/internal/helper"
)

// fakeInvoker replays queued results per sub-command and defaults to exit 0.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]helper.Result
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{results: make(map[string][]helper.Result)}
}

func (f *fakeInvoker) queue(sub string, res helper.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[sub] = append(f.results[sub], res)
}

func (f *fakeInvoker) Invoke(_ context.Context, sub string) helper.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub)
	if q := f.results[sub]; len(q) > 0 {
		f.results[sub] = q[1:]
		return q[0]
	}
	return helper.Result{Stdout: sub + " ok\n"}
}

func (f *fakeInvoker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeInvoker) count(sub string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == sub {
			n++
		}
	}
	return n
}

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) NotifyDisplayChanged(string) { c.n.Add(1) }

type recordedEnd struct {
	id     string
	marks  int
	reason string
}

type fakeHistory struct {
	mu      sync.Mutex
	started []string
	marks   []int
	ended   []recordedEnd
}

func (h *fakeHistory) SessionStarted(id, _ string, _ time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, id)
	return nil
}

func (h *fakeHistory) SessionMarked(_ string, marks int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.marks = append(h.marks, marks)
	return nil
}

func (h *fakeHistory) SessionEnded(id string, _ time.Time, marks int, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, recordedEnd{id: id, marks: marks, reason: reason})
	return nil
}

// newTestController wires a controller to a present artifact file in a temp dir.
func newTestController(t *testing.T, inv helper.Invoker, window time.Duration, opts ...Option) (*Controller, string) {
	t.Helper()
	artifact := filepath.Join(t.TempDir(), "session_state.json")
	require.NoError(t, os.WriteFile(artifact, []byte(`{"session":"test"}`), 0o644))

	c := New(Config{
		ArtifactPath: artifact,
		TapWindow:    window,
		PollInterval: 50 * time.Millisecond,
	}, inv, opts...)
	t.Cleanup(func() { _ = c.OnUnload() })
	return c, artifact
}

func TestStartActivatesSession(t *testing.T) {
	inv := newFakeInvoker()
	notes := &countingNotifier{}
	c, _ := newTestController(t, inv, time.Second, WithNotifier(notes))

	assert.Equal(t, IdleLabel, c.GetDisplayLabel(""))
	require.Equal(t, OutcomeOK, c.Press())

	snap := c.Snapshot()
	assert.True(t, snap.Active)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, 0, snap.MarkCount)
	assert.Equal(t, "REC● Marks: 0", c.GetDisplayLabel(""))
	assert.Equal(t, []string{SubStart}, inv.Calls())
	assert.EqualValues(t, 1, notes.n.Load())
}

func TestStartFailureLeavesNoState(t *testing.T) {
	tests := []struct {
		name string
		res  helper.Result
		want Outcome
	}{
		{"non-zero exit", helper.Result{ExitCode: 1, Stderr: "recorder busy"}, OutcomeProtocolFailure},
		{"spawn failure", helper.Result{ExitCode: helper.ExitSpawnFailure, Err: helper.ErrNoExecutable}, OutcomeSpawnFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newFakeInvoker()
			inv.queue(SubStart, tt.res)
			notes := &countingNotifier{}
			c, _ := newTestController(t, inv, time.Second, WithNotifier(notes))

			assert.Equal(t, tt.want, c.Press())
			assert.False(t, c.Snapshot().Active)
			assert.Equal(t, IdleLabel, c.GetDisplayLabel(""))
			assert.Zero(t, notes.n.Load())

			c.mu.Lock()
			running := c.reconciler.running
			c.mu.Unlock()
			assert.False(t, running, "no watch may be installed after a failed start")
		})
	}
}

func TestSinglePressMarksAfterWindow(t *testing.T) {
	inv := newFakeInvoker()
	c, _ := newTestController(t, inv, 50*time.Millisecond)

	require.Equal(t, OutcomeOK, c.Press())
	require.Equal(t, OutcomeOK, c.Press())
	assert.True(t, c.Snapshot().Armed)

	require.Eventually(t, func() bool {
		return c.Snapshot().MarkCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, c.Snapshot().Active)
	assert.False(t, c.Snapshot().Armed)
	assert.Equal(t, 0, inv.count(SubStop))
	assert.Equal(t, "REC● Marks: 1", c.GetDisplayLabel(""))
}

func TestDoublePressStops(t *testing.T) {
	inv := newFakeInvoker()
	notes := &countingNotifier{}
	c, _ := newTestController(t, inv, 200*time.Millisecond, WithNotifier(notes))

	require.Equal(t, OutcomeOK, c.Press())
	require.Equal(t, OutcomeOK, c.Press())
	require.Equal(t, OutcomeOK, c.Press())

	assert.False(t, c.Snapshot().Active)
	assert.Equal(t, IdleLabel, c.GetDisplayLabel(""))

	// The cancelled window must not produce a late mark.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, []string{SubStart, SubStop}, inv.Calls())
	assert.EqualValues(t, 2, notes.n.Load())
}

func TestMarkOutputSentinels(t *testing.T) {
	tests := []struct {
		name       string
		res        helper.Result
		wantOut    Outcome
		wantActive bool
		wantMarks  int
	}{
		{"recorded", helper.Result{Stdout: "Mark 1 at 00:12\n"}, OutcomeOK, true, 1},
		{"helper stopped", helper.Result{Stdout: "Saved.\n__STOPPED__\n"}, OutcomeOutOfBand, false, 0},
		{"canceled", helper.Result{Stdout: "canceled\n"}, OutcomeCanceled, true, 0},
		{"no active session", helper.Result{ExitCode: 1, Stderr: "Error: No active session\n"}, OutcomeOutOfBand, false, 0},
		{"other failure", helper.Result{ExitCode: 3, Stderr: "disk full\n"}, OutcomeProtocolFailure, true, 0},
		{"spawn failure", helper.Result{ExitCode: helper.ExitSpawnFailure, Err: helper.ErrSpawn}, OutcomeSpawnFailure, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newFakeInvoker()
			inv.queue(SubMark, tt.res)
			c, _ := newTestController(t, inv, time.Hour)
			require.Equal(t, OutcomeOK, c.Press())

			var out Outcome
			c.do(func() { out = c.markLocked() })

			assert.Equal(t, tt.wantOut, out)
			assert.Equal(t, tt.wantActive, c.Snapshot().Active)
			assert.Equal(t, tt.wantMarks, c.Snapshot().MarkCount)
			assert.Equal(t, 0, inv.count(SubStop), "out-of-band stops never call the helper")
		})
	}
}

func TestHelperStoppedViaMarkEditor(t *testing.T) {
	inv := newFakeInvoker()
	inv.queue(SubMark, helper.Result{Stdout: "__STOPPED__"})
	notes := &countingNotifier{}
	c, _ := newTestController(t, inv, 30*time.Millisecond, WithNotifier(notes))

	c.Press()
	c.Press()

	require.Eventually(t, func() bool { return !c.Snapshot().Active }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{SubStart, SubMark}, inv.Calls())
	assert.EqualValues(t, 2, notes.n.Load())
	assert.Equal(t, IdleLabel, c.GetDisplayLabel(""))
}

func TestArtifactRemovalForcesStop(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, path string)
	}{
		{"deleted", func(t *testing.T, path string) { require.NoError(t, os.Remove(path)) }},
		{"renamed", func(t *testing.T, path string) { require.NoError(t, os.Rename(path, path+".bak")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newFakeInvoker()
			notes := &countingNotifier{}
			hist := &fakeHistory{}
			c, artifact := newTestController(t, inv, time.Hour, WithNotifier(notes), WithHistory(hist))

			require.Equal(t, OutcomeOK, c.Press())
			tt.mutate(t, artifact)

			require.Eventually(t, func() bool { return !c.Snapshot().Active }, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, []string{SubStart}, inv.Calls())

			// Both channels may fire; only one transition is observed.
			time.Sleep(150 * time.Millisecond)
			assert.EqualValues(t, 2, notes.n.Load())

			hist.mu.Lock()
			defer hist.mu.Unlock()
			require.Len(t, hist.ended, 1)
			assert.Contains(t, []string{
				string(ReasonArtifactDeleted),
				string(ReasonArtifactRenamed),
				string(ReasonArtifactMissing),
			}, hist.ended[0].reason)
		})
	}
}

func TestPollingAloneCatchesDeletedArtifact(t *testing.T) {
	inv := newFakeInvoker()
	notes := &countingNotifier{}
	hist := &fakeHistory{}
	c, artifact := newTestController(t, inv, time.Hour, WithNotifier(notes), WithHistory(hist))
	var opened atomic.Int32
	c.reconciler.watch = func(string) *fsnotify.Watcher {
		opened.Add(1)
		return nil
	}

	require.Equal(t, OutcomeOK, c.Press())
	require.EqualValues(t, 1, opened.Load())

	// A few ticks pass with the file present.
	time.Sleep(80 * time.Millisecond)
	require.True(t, c.Snapshot().Active)
	require.NoError(t, os.Remove(artifact))

	require.Eventually(t, func() bool { return !c.Snapshot().Active }, 500*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []string{SubStart}, inv.Calls())
	assert.Equal(t, IdleLabel, c.GetDisplayLabel(""))

	hist.mu.Lock()
	defer hist.mu.Unlock()
	require.Len(t, hist.ended, 1)
	assert.Equal(t, string(ReasonArtifactMissing), hist.ended[0].reason)
}

func TestArtifactNeverAppearingEndsAfterGrace(t *testing.T) {
	inv := newFakeInvoker()
	artifact := filepath.Join(t.TempDir(), "state", "session_state.json")
	c := New(Config{
		ArtifactPath: artifact,
		TapWindow:    time.Hour,
		PollInterval: 20 * time.Millisecond,
		StartGrace:   100 * time.Millisecond,
	}, inv)
	t.Cleanup(func() { _ = c.OnUnload() })

	require.Equal(t, OutcomeOK, c.Press())
	assert.True(t, c.Snapshot().Active)
	require.Eventually(t, func() bool { return !c.Snapshot().Active }, 2*time.Second, 10*time.Millisecond)
}

func TestForceStopIsIdempotent(t *testing.T) {
	inv := newFakeInvoker()
	notes := &countingNotifier{}
	c, _ := newTestController(t, inv, time.Hour, WithNotifier(notes))

	require.Equal(t, OutcomeOK, c.Press())
	assert.True(t, c.ForceStop(ReasonArtifactDeleted))
	assert.False(t, c.ForceStop(ReasonArtifactMissing))
	assert.False(t, c.ForceStop(ReasonNoSession))

	assert.EqualValues(t, 2, notes.n.Load())
	assert.Equal(t, IdleLabel, c.GetDisplayLabel(""))
}

func TestMarkCountResetsOnRestart(t *testing.T) {
	inv := newFakeInvoker()
	c, _ := newTestController(t, inv, time.Hour)

	require.Equal(t, OutcomeOK, c.Press())
	c.do(func() { c.markLocked() })
	c.do(func() { c.markLocked() })
	require.Equal(t, 2, c.Snapshot().MarkCount)
	firstID := c.Snapshot().SessionID

	c.ForceStop(ReasonStop)
	assert.Equal(t, 0, c.Snapshot().MarkCount)

	require.Equal(t, OutcomeOK, c.Press())
	assert.Equal(t, 0, c.Snapshot().MarkCount)
	assert.NotEqual(t, firstID, c.Snapshot().SessionID)
	assert.Equal(t, "REC● Marks: 0", c.GetDisplayLabel(""))
}

func TestStopFailureStillClearsSession(t *testing.T) {
	inv := newFakeInvoker()
	inv.queue(SubStop, helper.Result{ExitCode: 1, Stderr: "ffmpeg did not exit"})
	c, _ := newTestController(t, inv, time.Hour)

	require.Equal(t, OutcomeOK, c.Press())
	require.Equal(t, OutcomeOK, c.Press())
	assert.Equal(t, OutcomeProtocolFailure, c.Press())
	assert.False(t, c.Snapshot().Active)
}

func TestOverduePressMarksThenArms(t *testing.T) {
	inv := newFakeInvoker()
	var clock atomic.Int64
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock.Store(base.UnixNano())
	now := func() time.Time { return time.Unix(0, clock.Load()) }

	c, _ := newTestController(t, inv, time.Hour, WithClock(now))
	require.Equal(t, OutcomeOK, c.Press())
	require.Equal(t, OutcomeOK, c.Press())

	// Past the window, before the timer callback has run.
	clock.Store(base.Add(2 * time.Hour).UnixNano())
	require.Equal(t, OutcomeOK, c.Press())

	snap := c.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, 1, snap.MarkCount)
	assert.True(t, snap.Armed)
	assert.Equal(t, []string{SubStart, SubMark}, inv.Calls())
}

func TestStaleTapExpiryIsDiscarded(t *testing.T) {
	inv := newFakeInvoker()
	c, _ := newTestController(t, inv, time.Hour)
	require.Equal(t, OutcomeOK, c.Press())
	require.Equal(t, OutcomeOK, c.Press())

	c.mu.Lock()
	stale := c.tap.gen - 1
	c.mu.Unlock()

	c.onTapExpired(stale)
	assert.Equal(t, 0, c.Snapshot().MarkCount)
	assert.True(t, c.Snapshot().Armed)
}

func TestOnUnloadStopsSession(t *testing.T) {
	inv := newFakeInvoker()
	hist := &fakeHistory{}
	c, _ := newTestController(t, inv, time.Hour, WithHistory(hist))

	require.Equal(t, OutcomeOK, c.Press())
	require.Equal(t, OutcomeOK, c.Press())
	require.NoError(t, c.OnUnload())

	assert.False(t, c.Snapshot().Active)
	assert.False(t, c.Snapshot().Armed)
	assert.Equal(t, []string{SubStart, SubStop}, inv.Calls())
	assert.Equal(t, OutcomeIgnored, c.Press())

	require.NoError(t, c.OnLoad())
	assert.Equal(t, OutcomeOK, c.Press())

	hist.mu.Lock()
	defer hist.mu.Unlock()
	require.Len(t, hist.ended, 1)
	assert.Equal(t, string(ReasonUnload), hist.ended[0].reason)
	assert.Len(t, hist.started, 2)
}

func TestHistoryTracksMarks(t *testing.T) {
	inv := newFakeInvoker()
	hist := &fakeHistory{}
	c, _ := newTestController(t, inv, time.Hour, WithHistory(hist))

	require.Equal(t, OutcomeOK, c.Press())
	c.do(func() { c.markLocked() })
	c.do(func() { c.markLocked() })
	c.ForceStop(ReasonStop)

	hist.mu.Lock()
	defer hist.mu.Unlock()
	assert.Equal(t, []int{1, 2}, hist.marks)
	require.Len(t, hist.ended, 1)
	assert.Equal(t, 2, hist.ended[0].marks)
	assert.Equal(t, hist.started[0], hist.ended[0].id)
}

func TestLabelReadDoesNotWaitForHelper(t *testing.T) {
	release := make(chan struct{})
	inv := &blockingInvoker{release: release}
	c, _ := newTestController(t, newFakeInvoker(), time.Hour)
	c.invoker = inv

	done := make(chan struct{})
	go func() {
		c.Press()
		close(done)
	}()

	require.Eventually(t, func() bool { return inv.entered.Load() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, IdleLabel, c.GetDisplayLabel(""))
	close(release)
	<-done
	assert.True(t, c.Snapshot().Active)
}

type blockingInvoker struct {
	entered atomic.Bool
	release chan struct{}
}

func (b *blockingInvoker) Invoke(_ context.Context, sub string) helper.Result {
	if sub == SubStart {
		b.entered.Store(true)
		<-b.release
	}
	return helper.Result{}
}
