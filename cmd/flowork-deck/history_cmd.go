package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/flowork/flowork-deck/internal/plugin"
	"github.com/flowork/flowork-deck/internal/statedb"
)

// historyEntry is the JSON form of one recorded session.
type historyEntry struct {
	ID        string     `json:"id"`
	Command   string     `json:"command"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Seconds   int64      `json:"duration_s"`
	Marks     int        `json:"marks"`
	EndReason string     `json:"end_reason,omitempty"`
}

func handleHistory(args []string, stdout, stderr io.Writer) int {
	var limit int
	_, jsonMode, err := parseClientFlags("history", args, stderr, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "n", 20, "Number of sessions (0 for all)")
	})
	if err != nil {
		return flagExit(err, stderr)
	}
	out := NewCLIOutput(stdout, stderr, jsonMode)

	hs := plugin.GetHistorySettings()
	if !hs.GetEnabled() {
		out.Error("history is disabled ([history] enabled = false)", ErrCodeStorage)
		return 1
	}
	if _, err := os.Stat(hs.DBPath); err != nil {
		out.Print("No sessions recorded yet.\n", []historyEntry{})
		return 0
	}

	db, err := statedb.Open(hs.DBPath)
	if err != nil {
		out.Error(err.Error(), ErrCodeStorage)
		return 1
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		out.Error(err.Error(), ErrCodeStorage)
		return 1
	}

	rows, err := db.ListSessions(limit)
	if err != nil {
		out.Error(err.Error(), ErrCodeStorage)
		return 1
	}

	now := time.Now()
	entries := make([]historyEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, toHistoryEntry(r, now))
	}
	text := formatHistory(rows, now)
	if started, err := db.LastServeStart(); err == nil && !started.IsZero() && len(rows) > 0 {
		text += fmt.Sprintf("\nHost last started %s\n", started.Local().Format("2006-01-02 15:04:05"))
	}
	out.Print(text, entries)
	return 0
}

func toHistoryEntry(r *statedb.SessionRow, now time.Time) historyEntry {
	e := historyEntry{
		ID:        r.ID,
		Command:   r.Command,
		StartedAt: r.StartedAt,
		Seconds:   int64(r.Duration(now).Seconds()),
		Marks:     r.MarkCount,
		EndReason: r.EndReason,
	}
	if !r.Open() {
		ended := r.EndedAt
		e.EndedAt = &ended
	}
	return e
}

func formatHistory(rows []*statedb.SessionRow, now time.Time) string {
	if len(rows) == 0 {
		return "No sessions recorded yet.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s  %-16s  %9s  %5s  %s\n", "ID", "STARTED", "DURATION", "MARKS", "ENDED BY")
	for _, r := range rows {
		reason := r.EndReason
		if r.Open() {
			reason = "(recording)"
		}
		fmt.Fprintf(&b, "%-8s  %-16s  %9s  %5d  %s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Duration(now).Round(time.Second),
			r.MarkCount,
			reason)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
