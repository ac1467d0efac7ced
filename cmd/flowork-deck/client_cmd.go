package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/flowork/flowork-deck/internal/ipc"
)

// parseClientFlags parses args with an optional --json flag and returns
// the positional arguments.
func parseClientFlags(name string, args []string, stderr io.Writer, setup func(*flag.FlagSet)) (positional []string, jsonMode bool, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonFlag := fs.Bool("json", false, "Output JSON")
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return nil, false, err
	}
	return fs.Args(), *jsonFlag, nil
}

func flagExit(err error, stderr io.Writer) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}

func handlePress(args []string, stdout, stderr io.Writer) int {
	var param string
	pos, jsonMode, err := parseClientFlags("press", args, stderr, func(fs *flag.FlagSet) {
		fs.StringVar(&param, "param", "", "Parameter passed to the command")
	})
	if err != nil {
		return flagExit(err, stderr)
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, "Usage: flowork-deck press <command> [--param P]")
		return 2
	}

	out := NewCLIOutput(stdout, stderr, jsonMode)
	ctx, cancel := clientContext()
	defer cancel()

	label, err := newClient().Press(ctx, pos[0], param)
	if err != nil {
		return reportClientError(out, err)
	}
	out.Print(styleLabel(label, isTerminal(stdout))+"\n", map[string]any{
		"success": true,
		"command": pos[0],
		"label":   label,
	})
	return 0
}

func handleLabel(args []string, stdout, stderr io.Writer) int {
	pos, jsonMode, err := parseClientFlags("label", args, stderr, nil)
	if err != nil {
		return flagExit(err, stderr)
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, "Usage: flowork-deck label <command>")
		return 2
	}

	out := NewCLIOutput(stdout, stderr, jsonMode)
	ctx, cancel := clientContext()
	defer cancel()

	label, err := newClient().Label(ctx, pos[0], "")
	if err != nil {
		return reportClientError(out, err)
	}
	out.Print(label+"\n", map[string]any{"command": pos[0], "label": label})
	return 0
}

// handleStatus prints every label in one line per command, for bars and
// prompts.
func handleStatus(args []string, stdout, stderr io.Writer) int {
	_, jsonMode, err := parseClientFlags("status", args, stderr, nil)
	if err != nil {
		return flagExit(err, stderr)
	}

	out := NewCLIOutput(stdout, stderr, jsonMode)
	ctx, cancel := clientContext()
	defer cancel()

	resp, err := newClient().Do(ctx, ipc.Request{Op: ipc.OpLabels})
	if err != nil {
		return reportClientError(out, err)
	}
	out.Print(formatStatus(resp.Labels, isTerminal(stdout)), resp.Labels)
	return 0
}

func formatStatus(labels map[string]string, tty bool) string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, styleLabel(labels[name], tty))
	}
	return b.String()
}

func handleList(args []string, stdout, stderr io.Writer) int {
	_, jsonMode, err := parseClientFlags("list", args, stderr, nil)
	if err != nil {
		return flagExit(err, stderr)
	}

	out := NewCLIOutput(stdout, stderr, jsonMode)
	ctx, cancel := clientContext()
	defer cancel()

	cmds, err := newClient().List(ctx)
	if err != nil {
		return reportClientError(out, err)
	}
	out.Print(formatCommandTable(cmds, isTerminal(stdout)), cmds)
	return 0
}

// Table column widths for list output.
const (
	tableColName  = 14
	tableColGroup = 12
	tableColTitle = 24
)

func formatCommandTable(cmds []ipc.CommandInfo, tty bool) string {
	if len(cmds) == 0 {
		return "No commands registered.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s\n",
		padCell("NAME", tableColName),
		padCell("GROUP", tableColGroup),
		padCell("TITLE", tableColTitle),
		"LABEL")
	for _, c := range cmds {
		name := padCell(c.Name, tableColName)
		group := padCell(c.Group, tableColGroup)
		if tty {
			name = nameStyle.Render(name)
			group = groupStyle.Render(group)
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", name, group, padCell(c.DisplayName, tableColTitle), styleLabel(c.Label, tty))
	}
	return b.String()
}

// padCell truncates or pads s to exactly width terminal cells.
func padCell(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func handleLogs(args []string, stdout, stderr io.Writer) int {
	var n int
	_, jsonMode, err := parseClientFlags("logs", args, stderr, func(fs *flag.FlagSet) {
		fs.IntVar(&n, "n", 50, "Number of lines")
	})
	if err != nil {
		return flagExit(err, stderr)
	}

	out := NewCLIOutput(stdout, stderr, jsonMode)
	ctx, cancel := clientContext()
	defer cancel()

	lines, err := newClient().Logs(ctx, n)
	if err != nil {
		return reportClientError(out, err)
	}
	human := strings.Join(lines, "\n")
	if human != "" {
		human += "\n"
	}
	out.Print(human, lines)
	return 0
}
