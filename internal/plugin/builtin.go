package plugin

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/flowork/flowork-deck/internal/helper"
	"github.com/flowork/flowork-deck/internal/recorder"
	"github.com/flowork/flowork-deck/internal/toggle"
)

// BuildRecorder constructs the record button from settings. history may be nil.
func BuildRecorder(s RecorderSettings, notifier DisplayNotifier, history recorder.History) *recorder.Controller {
	inv := helper.NewExecInvoker(s.Interpreter, s.Script, s.WorkDir, s.InvokeTimeout())

	opts := []recorder.Option{recorder.WithNotifier(notifier)}
	if history != nil {
		opts = append(opts, recorder.WithHistory(history))
	}

	pluginLog.Info("recorder_configured",
		slog.String("interpreter", s.Interpreter),
		slog.String("script", s.Script),
		slog.String("artifact", s.ArtifactPath()),
		slog.Duration("tap_window", s.TapWindow()))

	return recorder.New(recorder.Config{
		ArtifactPath: s.ArtifactPath(),
		TapWindow:    s.TapWindow(),
		PollInterval: s.PollInterval(),
		StartGrace:   s.StartGrace(),
		Label: recorder.LabelOptions{
			ShowElapsed: s.ShowElapsed,
			Width:       s.LabelWidth,
		},
	}, inv, opts...)
}

// BuildToggle constructs one toggle button from settings.
func BuildToggle(s ToggleSettings, notifier DisplayNotifier) *toggle.Toggle {
	return toggle.New(toggle.Config{
		Name:             s.Name,
		DisplayName:      s.DisplayName,
		Group:            s.Group,
		Command:          s.Command,
		Args:             s.Args,
		WorkDir:          s.WorkDir,
		RunningLabel:     s.RunningLabel,
		IdleLabel:        s.IdleLabel,
		MinPressInterval: time.Duration(s.MinPressIntervalMs) * time.Millisecond,
	}, notifier)
}

// RegisterConfigured builds the recorder and every configured toggle from
// the user config and registers them on r, which also receives their
// display notifications.
func RegisterConfigured(r *Registry, history recorder.History) error {
	if err := r.Register(BuildRecorder(GetRecorderSettings(), r, history)); err != nil {
		return err
	}
	for _, ts := range GetToggleSettings() {
		if err := r.Register(BuildToggle(ts, r)); err != nil {
			return fmt.Errorf("toggle %q: %w", ts.Name, err)
		}
	}
	return nil
}
