package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/flowork/flowork-deck/internal/ui"
)

func handleTUI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	fs.SetOutput(stderr)
	theme := fs.String("theme", ui.ThemeAuto, "Color theme: auto, dark or light")
	refresh := fs.Duration("refresh", ui.DefaultRefreshInterval, "Label refresh interval")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return flagExit(err, stderr)
	}
	switch *theme {
	case ui.ThemeAuto, ui.ThemeDark, ui.ThemeLight:
	default:
		fmt.Fprintf(stderr, "Error: unknown theme %q\n", *theme)
		return 2
	}
	if !isTerminal(stdout) {
		fmt.Fprintln(stderr, "Error: tui needs an interactive terminal; use 'flowork-deck status' instead")
		return 2
	}

	initLogging(nil)

	client := newClient()
	client.Timeout = 5 * time.Second
	if err := ui.Run(client, ui.Options{Theme: *theme, RefreshInterval: *refresh}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
