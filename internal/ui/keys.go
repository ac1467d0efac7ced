package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Press   key.Binding
	Filter  key.Binding
	Clear   key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Press:   key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "press")),
	Filter:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
	Clear:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// helpLine renders the enabled bindings in one row.
func (k keyMap) helpLine() string {
	themeMu.RLock()
	defer themeMu.RUnlock()
	var parts []string
	for _, b := range []key.Binding{k.Up, k.Down, k.Press, k.Filter, k.Refresh, k.Quit} {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+helpDescStyle.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}
