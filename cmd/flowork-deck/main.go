package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/flowork/flowork-deck/internal/logging"
	"github.com/flowork/flowork-deck/internal/platform"
	"github.com/flowork/flowork-deck/internal/plugin"
)

const Version = "0.3.0"

// EnvDebug forces debug-level logging to the data dir.
const EnvDebug = "FLOWORK_DECK_DEBUG"

var cliLog = logging.ForComponent(logging.CompCLI)

func init() {
	initColorProfile()
}

// initColorProfile picks the lipgloss color profile.
// FLOWORK_DECK_COLOR: truecolor, 256, 16, none
func initColorProfile() {
	if colorEnv := os.Getenv("FLOWORK_DECK_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printHelp(stdout)
		return 0
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "FloWork Deck v%s\n", Version)
		return 0
	case "help", "--help", "-h":
		printHelp(stdout)
		return 0
	case "serve":
		return handleServe(args[1:], stdout, stderr)
	case "press":
		return handlePress(args[1:], stdout, stderr)
	case "label":
		return handleLabel(args[1:], stdout, stderr)
	case "status":
		return handleStatus(args[1:], stdout, stderr)
	case "list", "ls":
		return handleList(args[1:], stdout, stderr)
	case "logs":
		return handleLogs(args[1:], stdout, stderr)
	case "history":
		return handleHistory(args[1:], stdout, stderr)
	case "config":
		return handleConfig(args[1:], stdout, stderr)
	case "tui":
		return handleTUI(args[1:], stdout, stderr)
	}

	fmt.Fprintf(stderr, "Error: unknown command %q\n", args[0])
	if s := plugin.Suggest(subcommands, args[0]); len(s) > 0 {
		fmt.Fprintf(stderr, "Did you mean: %s?\n", strings.Join(s, ", "))
	}
	fmt.Fprintln(stderr, "Run 'flowork-deck help' for usage.")
	return 2
}

var subcommands = []string{
	"serve", "press", "label", "status", "list", "logs", "history", "config", "tui", "version", "help",
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, `FloWork Deck v%s

Runs control-surface buttons (a record-with-marks button and process
toggles) and lets scripts drive them over a local socket.

Usage:
  flowork-deck serve [--listen ADDR] [--web] [--read-only] [--foreground]
  flowork-deck press <command> [--param P]
  flowork-deck label <command>
  flowork-deck status [--json]
  flowork-deck tui [--theme auto|dark|light]
  flowork-deck list [--json]
  flowork-deck logs [-n N]
  flowork-deck history [-n N] [--json]
  flowork-deck config init|path|show
  flowork-deck version

Record button:
  one press starts a session, then a single press adds a mark and a
  double press stops it.

Environment:
  %s   data dir (default ~/.flowork-deck)
  %s    helper state dir override
  %s  debug logging
  FLOWORK_DECK_COLOR  truecolor, 256, 16, none
`, Version, platform.EnvDataDir, platform.EnvLogDir, EnvDebug)
}

// initLogging configures the global logger from [logs]. console, when set,
// mirrors records in text form.
func initLogging(console io.Writer) string {
	dataDir, err := platform.DataDir()
	if err != nil {
		dataDir = ""
	}
	ls := plugin.GetLogSettings()
	debug := os.Getenv(EnvDebug) != ""

	cfg := logging.Config{
		Debug:           debug,
		LogDir:          dataDir,
		Level:           ls.Level,
		Format:          ls.Format,
		MaxSizeMB:       ls.MaxSizeMB,
		MaxBackups:      ls.MaxBackups,
		MaxAgeDays:      ls.RetentionDays,
		Compress:        ls.GetCompress(),
		RingLines:       ls.RingLines,
		SummaryInterval: time.Duration(ls.SummaryIntervalS) * time.Second,
		Console:         console,
	}
	if debug {
		cfg.Level = "debug"
	}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			cfg.LogDir = ""
		}
	}
	logging.Init(cfg)
	return dataDir
}

// watchDumpSignal writes the ring buffer to dir on SIGUSR1 until stop is closed.
func watchDumpSignal(dir string, stop <-chan struct{}) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(usr1)
		for {
			select {
			case <-stop:
				return
			case <-usr1:
				dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
				if err := logging.DumpRingBuffer(dumpPath); err != nil {
					cliLog.Error("crash_dump_failed", slog.String("error", err.Error()))
				} else {
					cliLog.Info("crash_dump_written", slog.String("path", dumpPath))
				}
			}
		}
	}()
}
