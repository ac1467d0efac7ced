package ui

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	dark "github.com/thiagokokada/dark-mode-go"
)

// themeChangedMsg carries the OS appearance; true means dark.
type themeChangedMsg bool

// themeWatcher forwards OS dark mode changes to the dashboard.
type themeWatcher struct {
	changes chan bool
	cancel  context.CancelFunc
}

// newThemeWatcher returns nil when the platform cannot report dark mode;
// the dashboard keeps its initial theme then.
func newThemeWatcher(parent context.Context) *themeWatcher {
	ctx, cancel := context.WithCancel(parent)
	events, errs, err := dark.WatchDarkMode(ctx)
	if err != nil {
		cancel()
		uiLog.Warn("theme_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}

	tw := &themeWatcher{changes: make(chan bool, 1), cancel: cancel}
	go func() {
		defer close(tw.changes)
		for {
			select {
			case <-ctx.Done():
				return
			case isDark, ok := <-events:
				if !ok {
					return
				}
				// Keep only the newest value.
				select {
				case <-tw.changes:
				default:
				}
				tw.changes <- isDark
			case err, ok := <-errs:
				if ok && err != nil {
					uiLog.Warn("theme_watcher_error", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return tw
}

// next waits for the following change. It returns nil after close.
func (tw *themeWatcher) next() tea.Cmd {
	if tw == nil {
		return nil
	}
	return func() tea.Msg {
		isDark, ok := <-tw.changes
		if !ok {
			return nil
		}
		return themeChangedMsg(isDark)
	}
}

func (tw *themeWatcher) close() {
	if tw != nil {
		tw.cancel()
	}
}
