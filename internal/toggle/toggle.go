// Package toggle implements stateless on/off buttons: one press launches a
// helper process, the next press kills it.
package toggle

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowork/flowork-deck/internal/logging"
)

var toggleLog = logging.ForComponent(logging.CompToggle)

// DefaultMinPressInterval drops key bounce and accidental double presses.
const DefaultMinPressInterval = 300 * time.Millisecond

// stopTimeout bounds how long a press waits for a killed helper to exit.
const stopTimeout = 5 * time.Second

// waitDelay caps how long Wait keeps draining output after the helper
// exits, in case a process outside its group still holds the pipes.
const waitDelay = time.Second

// ErrNoCommand is returned when a toggle has nothing to launch.
var ErrNoCommand = errors.New("toggle has no command configured")

// Config describes one toggle button.
type Config struct {
	Name        string
	DisplayName string
	Group       string

	Command string
	Args    []string
	WorkDir string

	// RunningLabel defaults to "Stop <DisplayName>", IdleLabel to DisplayName.
	RunningLabel string
	IdleLabel    string

	MinPressInterval time.Duration
}

// Notifier receives "redraw this command's label" requests.
type Notifier interface {
	NotifyDisplayChanged(command string)
}

// Toggle owns at most one helper process.
type Toggle struct {
	cfg      Config
	notifier Notifier
	limiter  *rate.Limiter

	// opMu serializes presses and unload; mu guards the process handle,
	// which the exit watcher also clears.
	opMu      sync.Mutex
	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{}
	startedAt time.Time
}

// New builds a toggle. notifier may be nil.
func New(cfg Config, notifier Notifier) *Toggle {
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.Name
	}
	if cfg.Group == "" {
		cfg.Group = "Toggles"
	}
	if cfg.IdleLabel == "" {
		cfg.IdleLabel = cfg.DisplayName
	}
	if cfg.RunningLabel == "" {
		cfg.RunningLabel = "Stop " + cfg.DisplayName
	}
	if cfg.MinPressInterval <= 0 {
		cfg.MinPressInterval = DefaultMinPressInterval
	}
	return &Toggle{
		cfg:      cfg,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinPressInterval), 1),
	}
}

func (t *Toggle) Name() string        { return t.cfg.Name }
func (t *Toggle) DisplayName() string { return t.cfg.DisplayName }
func (t *Toggle) Group() string       { return t.cfg.Group }

// Running reports whether the helper is alive and since when.
func (t *Toggle) Running() (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cmd != nil, t.startedAt
}

// RunCommand flips the helper between running and stopped.
func (t *Toggle) RunCommand(string) {
	if !t.limiter.Allow() {
		toggleLog.Debug("press_throttled", slog.String("command", t.cfg.Name))
		return
	}

	t.opMu.Lock()
	defer t.opMu.Unlock()

	if running, _ := t.Running(); running {
		t.stop()
		return
	}
	if err := t.start(); err != nil {
		toggleLog.Error("toggle_start_failed", slog.String("command", t.cfg.Name), slog.String("error", err.Error()))
	}
}

// GetDisplayLabel returns the running or idle label.
func (t *Toggle) GetDisplayLabel(string) string {
	if running, _ := t.Running(); running {
		return t.cfg.RunningLabel
	}
	return t.cfg.IdleLabel
}

func (t *Toggle) OnLoad() error { return nil }

// OnUnload kills the helper if it is running. It always completes.
func (t *Toggle) OnUnload() error {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	if running, _ := t.Running(); running {
		t.stop()
	}
	return nil
}

func (t *Toggle) start() error {
	if t.cfg.Command == "" {
		return ErrNoCommand
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.WorkDir
	cmd.Stdout = logging.NewBridgeWriter(logging.CompToggle, slog.LevelInfo, slog.String("command", t.cfg.Name))
	cmd.Stderr = logging.NewBridgeWriter(logging.CompToggle, slog.LevelWarn, slog.String("command", t.cfg.Name))
	cmd.WaitDelay = waitDelay
	isolate(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.cfg.Command, err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.cmd = cmd
	t.done = done
	t.startedAt = time.Now()
	t.mu.Unlock()

	toggleLog.Info("toggle_started", slog.String("command", t.cfg.Name), slog.Int("pid", cmd.Process.Pid))
	t.notify()

	go t.watch(cmd, done)
	return nil
}

// watch reaps the helper and clears the handle when it exits, whether by
// a press or on its own.
func (t *Toggle) watch(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	t.mu.Lock()
	if t.cmd == cmd {
		t.cmd = nil
		t.done = nil
		t.startedAt = time.Time{}
	}
	t.mu.Unlock()
	close(done)

	attrs := []any{slog.String("command", t.cfg.Name), slog.Int("exit", code)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	toggleLog.Info("toggle_exited", attrs...)
	t.notify()
}

func (t *Toggle) stop() {
	t.mu.Lock()
	cmd, done := t.cmd, t.done
	t.mu.Unlock()
	if cmd == nil {
		return
	}

	if err := killGroup(cmd); err != nil {
		toggleLog.Warn("toggle_kill_failed", slog.String("command", t.cfg.Name), slog.String("error", err.Error()))
	}
	select {
	case <-done:
		return
	case <-time.After(stopTimeout):
	}

	// The helper was signalled; do not let a stuck reaper pin the label.
	toggleLog.Warn("toggle_stop_timeout", slog.String("command", t.cfg.Name), slog.Duration("waited", stopTimeout))
	t.mu.Lock()
	cleared := t.cmd == cmd
	if cleared {
		t.cmd = nil
		t.done = nil
		t.startedAt = time.Time{}
	}
	t.mu.Unlock()
	if cleared {
		t.notify()
	}
}

func (t *Toggle) notify() {
	if t.notifier != nil {
		t.notifier.NotifyDisplayChanged(t.cfg.Name)
	}
}
