package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/flowork/flowork-deck/internal/ipc"
	"github.com/flowork/flowork-deck/internal/plugin"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, so
// "press record --param x" would otherwise ignore --param.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// CLIOutput handles consistent output formatting across CLI commands.
type CLIOutput struct {
	out      io.Writer
	errOut   io.Writer
	jsonMode bool
}

// NewCLIOutput creates an output handler writing to out and errOut.
func NewCLIOutput(out, errOut io.Writer, jsonMode bool) *CLIOutput {
	return &CLIOutput{out: out, errOut: errOut, jsonMode: jsonMode}
}

// Print prints humanOutput, or jsonData in JSON mode.
func (c *CLIOutput) Print(humanOutput string, jsonData any) {
	if c.jsonMode {
		c.printJSON(jsonData)
		return
	}
	fmt.Fprint(c.out, humanOutput)
}

// Error prints an error message or a JSON error object.
func (c *CLIOutput) Error(message, code string) {
	if c.jsonMode {
		c.printJSON(map[string]any{
			"success": false,
			"error":   message,
			"code":    code,
		})
		return
	}
	fmt.Fprintf(c.errOut, "Error: %s\n", message)
}

func (c *CLIOutput) printJSON(data any) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(c.errOut, "Error: failed to format JSON: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, string(output))
}

// Error codes for JSON output.
const (
	ErrCodeNotRunning = "NOT_RUNNING"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeRemote     = "REMOTE_ERROR"
	ErrCodeStorage    = "STORAGE_ERROR"
)

var (
	recStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	idleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	nameStyle  = lipgloss.NewStyle().Bold(true)
	groupStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF"))
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// styleLabel colors active labels when writing to a terminal.
func styleLabel(label string, tty bool) string {
	if !tty {
		return label
	}
	if strings.HasPrefix(label, "REC") || strings.HasSuffix(label, "ON") {
		return recStyle.Render(label)
	}
	return idleStyle.Render(label)
}

// newClient returns a control socket client for the configured host.
func newClient() *ipc.Client {
	return ipc.NewClient(plugin.GetIPCSettings().SocketPath)
}

// reportClientError prints err with a hint and returns the exit code.
func reportClientError(out *CLIOutput, err error) int {
	var remote *ipc.RemoteError
	switch {
	case errors.Is(err, ipc.ErrHostNotRunning):
		out.Error(err.Error()+"; start it with 'flowork-deck serve'", ErrCodeNotRunning)
		return 3
	case errors.As(err, &remote):
		msg := remote.Message
		if len(remote.Suggestions) > 0 {
			msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(remote.Suggestions, ", "))
		}
		code := ErrCodeRemote
		if strings.Contains(remote.Message, plugin.ErrUnknownCommand.Error()) {
			code = ErrCodeNotFound
		}
		out.Error(msg, code)
		return 1
	default:
		out.Error(err.Error(), ErrCodeRemote)
		return 1
	}
}

func clientContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ipc.DefaultTimeout)
}
