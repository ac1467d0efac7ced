// Package recorder implements the record-session button: one physical key
// that starts a recording, drops a mark on single press and stops on double
// press, while staying in step with the external record helper even when the
// helper ends the session on its own.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowork/flowork-deck/internal/helper"
	"github.com/flowork/flowork-deck/internal/logging"
)

var recLog = logging.ForComponent(logging.CompRecorder)

// Defaults for Config fields left zero.
const (
	DefaultName         = "record"
	DefaultDisplayName  = "Record with Marks"
	DefaultGroup        = "Recording"
	DefaultTapWindow    = 600 * time.Millisecond
	DefaultPollInterval = 800 * time.Millisecond
	DefaultStartGrace   = 5 * time.Second
)

// Config describes one record button.
type Config struct {
	Name        string
	DisplayName string
	Group       string

	// ArtifactPath is the helper's session state file.
	ArtifactPath string

	TapWindow    time.Duration
	PollInterval time.Duration

	// StartGrace is how long the poll tolerates an artifact that has not
	// appeared yet after a successful start.
	StartGrace time.Duration

	Label LabelOptions
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.DisplayName == "" {
		c.DisplayName = DefaultDisplayName
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.TapWindow <= 0 {
		c.TapWindow = DefaultTapWindow
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StartGrace <= 0 {
		c.StartGrace = DefaultStartGrace
	}
}

// Notifier receives "redraw this command's label" requests.
type Notifier interface {
	NotifyDisplayChanged(command string)
}

// History persists session boundaries. Errors are logged, never fatal.
type History interface {
	SessionStarted(id, command string, at time.Time) error
	SessionMarked(id string, marks int) error
	SessionEnded(id string, at time.Time, marks int, reason string) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets the display observer.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithHistory records sessions to h.
func WithHistory(h History) Option {
	return func(c *Controller) { c.history = h }
}

// WithClock overrides time.Now for labels and tap bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the record button. Every state transition (press, tap
// expiry, reconciler report, unload) runs under mu, including the blocking
// helper round-trip, so two transitions never interleave. Label reads go
// through a published snapshot and never wait on mu.
type Controller struct {
	cfg      Config
	invoker  helper.Invoker
	notifier Notifier
	history  History
	now      func() time.Time

	mu         sync.Mutex
	active     bool
	sessionID  string
	markCount  int
	startedAt  time.Time
	unloaded   bool
	pending    int
	tap        *tapDisambiguator
	reconciler *artifactReconciler

	view atomic.Pointer[Snapshot]
}

// New builds a controller driving inv.
func New(cfg Config, inv helper.Invoker, opts ...Option) *Controller {
	cfg.applyDefaults()
	c := &Controller{
		cfg:     cfg,
		invoker: inv,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tap = newTapDisambiguator(cfg.TapWindow, c.onTapExpired)
	c.reconciler = newArtifactReconciler(cfg.ArtifactPath, cfg.PollInterval, cfg.StartGrace, c.onArtifactGone)
	c.view.Store(&Snapshot{})
	return c
}

// Name returns the command identifier used by the host and the IPC surface.
func (c *Controller) Name() string { return c.cfg.Name }

// DisplayName returns the human readable command name.
func (c *Controller) DisplayName() string { return c.cfg.DisplayName }

// Group returns the command's group in the host's action list.
func (c *Controller) Group() string { return c.cfg.Group }

// RunCommand handles one physical button press.
func (c *Controller) RunCommand(string) {
	c.Press()
}

// GetDisplayLabel renders the current label from the last published state.
func (c *Controller) GetDisplayLabel(string) string {
	return RenderLabel(c.Snapshot(), c.now(), c.cfg.Label)
}

// OnLoad re-enables a controller after OnUnload. No helper is contacted.
func (c *Controller) OnLoad() error {
	c.do(func() { c.unloaded = false })
	return nil
}

// OnUnload stops any running session, asks the helper to close it, and
// waits for the reconciler's goroutines to exit. It always completes.
func (c *Controller) OnUnload() error {
	c.do(func() {
		if c.active {
			c.stopLocked(ReasonUnload)
		}
		c.tap.Cancel()
		c.reconciler.Stop()
		c.unloaded = true
	})
	c.reconciler.Wait()
	recLog.Info("recorder_unloaded", slog.String("command", c.cfg.Name))
	return nil
}

// Snapshot returns the last published session state.
func (c *Controller) Snapshot() Snapshot {
	return *c.view.Load()
}

// Press classifies one button press and performs what it asks for.
func (c *Controller) Press() Outcome {
	out := OutcomeIgnored
	c.do(func() {
		if c.unloaded {
			recLog.Debug("press_after_unload", slog.String("command", c.cfg.Name))
			return
		}
		if !c.active {
			out = c.startLocked()
			return
		}

		now := c.now()
		if c.tap.Overdue(now) {
			// The window elapsed but its timer has not been processed yet:
			// the pending press is a mark, this one opens a new window.
			c.tap.Cancel()
			out = c.markLocked()
			if !c.active {
				return
			}
			c.tap.Press(c.now())
			return
		}

		switch c.tap.Press(now) {
		case IntentStop:
			out = c.stopLocked(ReasonStop)
		default:
			out = OutcomeOK
			recLog.Debug("tap_armed", slog.String("command", c.cfg.Name))
		}
	})
	return out
}

// ForceStop clears the session without contacting the helper. It reports
// whether a session was active. Safe to call repeatedly.
func (c *Controller) ForceStop(reason EndReason) bool {
	var stopped bool
	c.do(func() { stopped = c.forceStopLocked(reason) })
	return stopped
}

// do runs fn under the lock, publishes the resulting snapshot, then
// delivers queued display notifications with the lock released.
func (c *Controller) do(fn func()) {
	c.mu.Lock()
	fn()
	c.publishLocked()
	n := c.pending
	c.pending = 0
	c.mu.Unlock()

	if c.notifier == nil {
		return
	}
	for ; n > 0; n-- {
		c.notifier.NotifyDisplayChanged(c.cfg.Name)
	}
}

func (c *Controller) publishLocked() {
	c.view.Store(&Snapshot{
		Active:    c.active,
		SessionID: c.sessionID,
		MarkCount: c.markCount,
		StartedAt: c.startedAt,
		Armed:     c.tap.Armed(),
	})
}

func (c *Controller) startLocked() Outcome {
	c.tap.Cancel()

	res := c.invoker.Invoke(context.Background(), SubStart)
	if !res.OK() {
		recLog.Error("start_failed",
			slog.String("command", c.cfg.Name),
			slog.Int("exit", res.ExitCode),
			slog.String("stderr", helper.Trim(res.Stderr)))
		if res.SpawnFailed() {
			return OutcomeSpawnFailure
		}
		return OutcomeProtocolFailure
	}

	c.active = true
	c.sessionID = uuid.NewString()
	c.markCount = 0
	c.startedAt = c.now()
	c.reconciler.Start()
	c.pending++

	recLog.Info("session_started",
		slog.String("command", c.cfg.Name),
		slog.String("session_id", c.sessionID),
		slog.String("stdout", helper.Trim(res.Stdout)))
	c.recordHistory("start", func(h History) error {
		return h.SessionStarted(c.sessionID, c.cfg.Name, c.startedAt)
	})
	return OutcomeOK
}

func (c *Controller) markLocked() Outcome {
	res := c.invoker.Invoke(context.Background(), SubMark)
	stdout := helper.Trim(res.Stdout)

	if !res.OK() {
		if reportsNoSession(res.Stderr) {
			recLog.Info("mark_found_no_session", slog.String("command", c.cfg.Name))
			c.forceStopLocked(ReasonNoSession)
			return OutcomeOutOfBand
		}
		recLog.Error("mark_failed",
			slog.String("command", c.cfg.Name),
			slog.Int("exit", res.ExitCode),
			slog.String("stderr", helper.Trim(res.Stderr)))
		if res.SpawnFailed() {
			return OutcomeSpawnFailure
		}
		return OutcomeProtocolFailure
	}

	switch classifyMarkOutput(res.Stdout) {
	case markStopped:
		recLog.Info("helper_stopped_session", slog.String("command", c.cfg.Name), slog.String("stdout", stdout))
		c.forceStopLocked(ReasonHelperStopped)
		return OutcomeOutOfBand
	case markCanceled:
		recLog.Info("mark_canceled", slog.String("command", c.cfg.Name))
		return OutcomeCanceled
	}

	c.markCount++
	c.pending++
	recLog.Info("mark_added",
		slog.String("command", c.cfg.Name),
		slog.String("session_id", c.sessionID),
		slog.Int("marks", c.markCount),
		slog.String("stdout", stdout))
	c.recordHistory("mark", func(h History) error {
		return h.SessionMarked(c.sessionID, c.markCount)
	})
	return OutcomeOK
}

// stopLocked asks the helper to stop and clears local state whatever the
// helper answers.
func (c *Controller) stopLocked(reason EndReason) Outcome {
	out := OutcomeOK
	res := c.invoker.Invoke(context.Background(), SubStop)
	if !res.OK() {
		recLog.Warn("stop_failed",
			slog.String("command", c.cfg.Name),
			slog.Int("exit", res.ExitCode),
			slog.String("stderr", helper.Trim(res.Stderr)))
		out = OutcomeProtocolFailure
		if res.SpawnFailed() {
			out = OutcomeSpawnFailure
		}
	} else {
		recLog.Info("stop_sent", slog.String("command", c.cfg.Name), slog.String("stdout", helper.Trim(res.Stdout)))
	}
	c.forceStopLocked(reason)
	return out
}

// forceStopLocked is idempotent: it notifies only on an actual transition.
func (c *Controller) forceStopLocked(reason EndReason) bool {
	c.tap.Cancel()
	if !c.active {
		return false
	}
	c.reconciler.Stop()

	id, marks := c.sessionID, c.markCount
	c.active = false
	c.sessionID = ""
	c.markCount = 0
	c.startedAt = time.Time{}
	c.pending++

	recLog.Info("session_ended",
		slog.String("command", c.cfg.Name),
		slog.String("session_id", id),
		slog.Int("marks", marks),
		slog.String("reason", string(reason)))
	c.recordHistory("end", func(h History) error {
		return h.SessionEnded(id, c.now(), marks, string(reason))
	})
	return true
}

func (c *Controller) onTapExpired(gen uint64) {
	c.do(func() {
		if c.tap.Expire(gen) != IntentMark || !c.active || c.unloaded {
			return
		}
		c.markLocked()
	})
}

func (c *Controller) onArtifactGone(gen uint64, reason EndReason) {
	c.do(func() {
		if !c.reconciler.Current(gen) {
			return
		}
		c.forceStopLocked(reason)
	})
}

func (c *Controller) recordHistory(op string, fn func(History) error) {
	if c.history == nil {
		return
	}
	if err := fn(c.history); err != nil {
		recLog.Warn("history_write_failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}
