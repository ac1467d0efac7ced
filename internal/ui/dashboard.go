// Package ui is the terminal dashboard for a running deck host: it mirrors
// every button label and presses buttons from the keyboard.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/flowork/flowork-deck/internal/ipc"
	"github.com/flowork/flowork-deck/internal/logging"
)

var uiLog = logging.ForComponent(logging.CompUI)

// DefaultRefreshInterval is how often labels are re-read from the host.
const DefaultRefreshInterval = 500 * time.Millisecond

// Deck is the host surface the dashboard drives. *ipc.Client implements it.
type Deck interface {
	List(ctx context.Context) ([]ipc.CommandInfo, error)
	Press(ctx context.Context, command, param string) (string, error)
}

// Options configures the dashboard.
type Options struct {
	// Theme is "auto", "dark" or "light".
	Theme           string
	RefreshInterval time.Duration
}

type (
	commandsMsg struct {
		commands []ipc.CommandInfo
		err      error
	}
	pressedMsg struct {
		command string
		label   string
		err     error
	}
	tickMsg time.Time
)

// Dashboard is the bubbletea model.
type Dashboard struct {
	deck     Deck
	interval time.Duration
	theme    *themeWatcher

	commands []ipc.CommandInfo
	visible  []int // indices into commands after filtering
	cursor   int

	filter    textinput.Model
	filtering bool

	status  string
	err     error
	updated time.Time
	width   int
}

// NewDashboard builds a dashboard for deck.
func NewDashboard(deck Deck, opts Options) *Dashboard {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Theme == "" {
		opts.Theme = ThemeAuto
	}
	InitTheme(opts.Theme)

	ti := textinput.New()
	ti.Placeholder = "filter commands..."
	ti.CharLimit = 64
	ti.Width = 30

	d := &Dashboard{
		deck:     deck,
		interval: opts.RefreshInterval,
		filter:   ti,
	}
	if opts.Theme == ThemeAuto {
		d.theme = newThemeWatcher(context.Background())
	}
	return d
}

// Run shows the dashboard until the user quits.
func Run(deck Deck, opts Options) error {
	d := NewDashboard(deck, opts)
	defer d.theme.close()

	if _, err := tea.NewProgram(d, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.refresh(), d.tick(), d.theme.next())
}

func (d *Dashboard) refresh() tea.Cmd {
	deck := d.deck
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		cmds, err := deck.List(ctx)
		return commandsMsg{commands: cmds, err: err}
	}
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(d.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (d *Dashboard) press(name string) tea.Cmd {
	deck := d.deck
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), ipc.DefaultTimeout)
		defer cancel()
		label, err := deck.Press(ctx, name, "")
		return pressedMsg{command: name, label: label, err: err}
	}
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		return d, nil

	case tickMsg:
		return d, tea.Batch(d.refresh(), d.tick())

	case commandsMsg:
		d.err = msg.err
		if msg.err == nil {
			d.setCommands(msg.commands)
			d.updated = time.Now()
		}
		return d, nil

	case pressedMsg:
		if msg.err != nil {
			uiLog.Warn("press_failed", slog.String("command", msg.command), slog.String("error", msg.err.Error()))
			d.status = fmt.Sprintf("%s: %v", msg.command, msg.err)
			return d, nil
		}
		d.status = fmt.Sprintf("%s → %s", msg.command, msg.label)
		d.setLabel(msg.command, msg.label)
		return d, d.refresh()

	case themeChangedMsg:
		applyTheme(bool(msg))
		return d, d.theme.next()

	case tea.KeyMsg:
		if d.filtering {
			return d.updateFilter(msg)
		}
		return d.updateKeys(msg)
	}
	return d, nil
}

func (d *Dashboard) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return d, tea.Quit
	case key.Matches(msg, keys.Up):
		if d.cursor > 0 {
			d.cursor--
		}
	case key.Matches(msg, keys.Down):
		if d.cursor < len(d.visible)-1 {
			d.cursor++
		}
	case key.Matches(msg, keys.Press):
		if c, ok := d.selected(); ok {
			return d, d.press(c.Name)
		}
	case key.Matches(msg, keys.Filter):
		d.filtering = true
		return d, d.filter.Focus()
	case key.Matches(msg, keys.Clear):
		d.filter.SetValue("")
		d.applyFilter()
	case key.Matches(msg, keys.Refresh):
		return d, d.refresh()
	}
	return d, nil
}

func (d *Dashboard) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		d.filtering = false
		d.filter.Blur()
		d.filter.SetValue("")
		d.applyFilter()
		return d, nil
	case tea.KeyEnter:
		d.filtering = false
		d.filter.Blur()
		return d, nil
	}

	var cmd tea.Cmd
	d.filter, cmd = d.filter.Update(msg)
	d.applyFilter()
	return d, cmd
}

func (d *Dashboard) setCommands(cmds []ipc.CommandInfo) {
	var keep string
	if c, ok := d.selected(); ok {
		keep = c.Name
	}
	d.commands = cmds
	d.applyFilter()
	for i, idx := range d.visible {
		if d.commands[idx].Name == keep {
			d.cursor = i
			break
		}
	}
}

func (d *Dashboard) setLabel(name, label string) {
	for i := range d.commands {
		if d.commands[i].Name == name {
			d.commands[i].Label = label
		}
	}
}

// commandTitles implements fuzzy.Source over name and display name.
type commandTitles []ipc.CommandInfo

func (c commandTitles) String(i int) string { return c[i].Name + " " + c[i].DisplayName }
func (c commandTitles) Len() int            { return len(c) }

func (d *Dashboard) applyFilter() {
	query := strings.TrimSpace(d.filter.Value())
	d.visible = d.visible[:0]
	if query == "" {
		for i := range d.commands {
			d.visible = append(d.visible, i)
		}
	} else {
		for _, m := range fuzzy.FindFrom(query, commandTitles(d.commands)) {
			d.visible = append(d.visible, m.Index)
		}
	}
	if d.cursor >= len(d.visible) {
		d.cursor = max(len(d.visible)-1, 0)
	}
}

func (d *Dashboard) selected() (ipc.CommandInfo, bool) {
	if d.cursor < 0 || d.cursor >= len(d.visible) {
		return ipc.CommandInfo{}, false
	}
	return d.commands[d.visible[d.cursor]], true
}

// Table column widths.
const (
	colName  = 16
	colGroup = 12
)

func (d *Dashboard) View() string {
	themeMu.RLock()
	title := titleStyle.Render("FloWork Deck")
	row, sel, group, errS := rowStyle, selectedStyle, groupStyle, errorStyle
	filterBox := filterStyle
	themeMu.RUnlock()

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")

	if d.filtering || d.filter.Value() != "" {
		b.WriteString(filterBox.Render(d.filter.View()))
		b.WriteString("\n")
	}

	switch {
	case d.err != nil && len(d.commands) == 0:
		b.WriteString(errS.Render("host unavailable: " + d.err.Error()))
		b.WriteString("\n")
	case len(d.visible) == 0:
		b.WriteString(row.Render("no commands"))
		b.WriteString("\n")
	}

	for i, idx := range d.visible {
		c := d.commands[idx]
		name := runewidth.FillRight(runewidth.Truncate(c.Name, colName, "…"), colName)
		style := row
		if i == d.cursor {
			style = sel
		}
		fmt.Fprintf(&b, "%s%s %s\n",
			style.Render(name),
			group.Render(runewidth.FillRight(runewidth.Truncate(c.Group, colGroup, "…"), colGroup)),
			labelStyle(c.Label).Render(c.Label))
	}

	b.WriteString("\n")
	if d.err != nil && len(d.commands) > 0 {
		b.WriteString(errS.Render("stale: " + d.err.Error()))
		b.WriteString("\n")
	} else if d.status != "" {
		b.WriteString(d.status)
		b.WriteString("\n")
	}
	b.WriteString(keys.helpLine())
	b.WriteString("\n")
	return b.String()
}
