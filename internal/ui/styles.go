package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme names accepted by InitTheme.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
)

type palette struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Green, Yellow, Red         lipgloss.Color
}

// Tokyo Night
var darkPalette = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Red:     lipgloss.Color("#f7768e"),
}

// Tokyo Night Light
var lightPalette = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Red:     lipgloss.Color("#8c4351"),
}

// themeMu guards the style variables during live theme switches.
var themeMu sync.RWMutex

var (
	currentDark bool

	titleStyle    lipgloss.Style
	rowStyle      lipgloss.Style
	selectedStyle lipgloss.Style
	groupStyle    lipgloss.Style
	recLabelStyle lipgloss.Style
	onLabelStyle  lipgloss.Style
	idleStyle     lipgloss.Style
	errorStyle    lipgloss.Style
	helpKeyStyle  lipgloss.Style
	helpDescStyle lipgloss.Style
	filterStyle   lipgloss.Style
)

func init() {
	InitTheme(ThemeDark)
}

// InitTheme applies a theme by name. "auto" starts dark; the dashboard
// follows the OS from there.
func InitTheme(name string) {
	applyTheme(name != ThemeLight)
}

// IsDark reports whether the dark palette is active.
func IsDark() bool {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentDark
}

func applyTheme(dark bool) {
	p := lightPalette
	if dark {
		p = darkPalette
	}

	themeMu.Lock()
	defer themeMu.Unlock()
	currentDark = dark

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(p.Accent).Padding(0, 1)
	rowStyle = lipgloss.NewStyle().Foreground(p.Text).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Foreground(p.Bg).Background(p.Accent).Bold(true).Padding(0, 1)
	groupStyle = lipgloss.NewStyle().Foreground(p.TextDim).Italic(true).Padding(0, 1)
	recLabelStyle = lipgloss.NewStyle().Foreground(p.Red).Bold(true)
	onLabelStyle = lipgloss.NewStyle().Foreground(p.Green)
	idleStyle = lipgloss.NewStyle().Foreground(p.TextDim)
	errorStyle = lipgloss.NewStyle().Foreground(p.Red)
	helpKeyStyle = lipgloss.NewStyle().Foreground(p.Yellow).Bold(true)
	helpDescStyle = lipgloss.NewStyle().Foreground(p.TextDim)
	filterStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Border).
		Padding(0, 1)
}

// labelStyle picks the style for a button label by its state.
func labelStyle(label string) lipgloss.Style {
	themeMu.RLock()
	defer themeMu.RUnlock()
	switch {
	case strings.HasPrefix(label, "REC"):
		return recLabelStyle
	case strings.HasSuffix(label, " ON"), strings.HasPrefix(label, "Stop "):
		return onLabelStyle
	default:
		return idleStyle
	}
}
