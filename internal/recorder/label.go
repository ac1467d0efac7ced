package recorder

import (
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"
)

// Label texts.
const (
	IdleLabel   = "Start Recording"
	activeMark  = "REC●"
	labelMarker = "…"
)

// Snapshot is a consistent read of the session state.
type Snapshot struct {
	Active    bool
	SessionID string
	MarkCount int
	StartedAt time.Time
	Armed     bool
}

// LabelOptions tunes the rendered label.
type LabelOptions struct {
	// ShowElapsed adds mm:ss (or h:mm:ss) since start to the active label.
	ShowElapsed bool

	// Width truncates the label to this many terminal cells; zero disables.
	Width int
}

// RenderLabel maps a snapshot to the button text. It is a pure function of
// its inputs.
func RenderLabel(s Snapshot, now time.Time, opts LabelOptions) string {
	var label string
	switch {
	case !s.Active:
		label = IdleLabel
	case opts.ShowElapsed:
		label = fmt.Sprintf("%s %s Marks: %d", activeMark, formatElapsed(now.Sub(s.StartedAt)), s.MarkCount)
	default:
		label = fmt.Sprintf("%s Marks: %d", activeMark, s.MarkCount)
	}

	if opts.Width > 0 && runewidth.StringWidth(label) > opts.Width {
		label = runewidth.Truncate(label, opts.Width, labelMarker)
	}
	return label
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
