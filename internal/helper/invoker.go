// Package helper runs external helper programs as one-shot request/response
// calls: one sub-command word in, exit code plus both output streams out.
package helper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/flowork/flowork-deck/internal/logging"
)

var helperLog = logging.ForComponent(logging.CompHelper)

// Synthetic exit codes for invocations that never produced a real one.
const (
	ExitSpawnFailure = -1
	ExitTimeout      = -2
)

// waitDelay bounds how long output pipes are drained after a timeout kill.
const waitDelay = time.Second

// Sentinel errors describing why an invocation produced a synthetic exit code.
var (
	// ErrNoExecutable indicates the helper executable could not be found.
	ErrNoExecutable = errors.New("helper executable not found")

	// ErrSpawn indicates the helper could not be started (permissions, bad format).
	ErrSpawn = errors.New("helper could not be started")

	// ErrTimeout indicates the helper did not exit before the invocation deadline.
	ErrTimeout = errors.New("helper did not exit in time")
)

// Result is the uniform shape every invocation returns.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// Err is set only for synthetic results (spawn failure, timeout).
	// Helpers exiting non-zero on their own leave it nil.
	Err error
}

// OK reports whether the helper accepted the request.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// SpawnFailed reports whether the helper never ran to completion.
func (r Result) SpawnFailed() bool {
	return r.Err != nil
}

// Invoker runs one helper sub-command synchronously.
type Invoker interface {
	Invoke(ctx context.Context, subcommand string) Result
}

// ExecInvoker runs Program with Args followed by the sub-command word.
// For a Python helper: Program="pythonw", Args=["rec.py"].
type ExecInvoker struct {
	Program string
	Args    []string
	Dir     string

	// Timeout bounds a single invocation; zero means no limit.
	Timeout time.Duration
}

// NewExecInvoker builds an invoker for an interpreter + script pair. An empty
// script means the interpreter is the helper itself.
func NewExecInvoker(interpreter, script, workDir string, timeout time.Duration) *ExecInvoker {
	inv := &ExecInvoker{Program: interpreter, Dir: workDir, Timeout: timeout}
	if script != "" {
		inv.Args = []string{script}
	}
	return inv
}

// Invoke blocks until the helper exits and both streams are drained.
// It never returns an error: spawn problems are folded into the Result.
func (e *ExecInvoker) Invoke(ctx context.Context, subcommand string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.Args...), subcommand)
	cmd := exec.CommandContext(ctx, e.Program, args...)
	cmd.Dir = e.Dir
	// A killed helper may leave grandchildren holding the pipes open.
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.ExitCode = ExitTimeout
		res.Err = fmt.Errorf("%w: %s %s: %v", ErrTimeout, e.Program, subcommand, ctx.Err())
		res.Stderr = appendDiagnostic(res.Stderr, res.Err.Error())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		res.ExitCode = ExitSpawnFailure
		res.Err = fmt.Errorf("%w: %s: %v", ErrNoExecutable, e.Program, err)
		res.Stderr = appendDiagnostic(res.Stderr, res.Err.Error())
	default:
		res.ExitCode = ExitSpawnFailure
		res.Err = fmt.Errorf("%w: %s: %v", ErrSpawn, e.Program, err)
		res.Stderr = appendDiagnostic(res.Stderr, res.Err.Error())
	}

	helperLog.Debug("helper_invoked",
		slog.String("program", e.Program),
		slog.String("subcommand", subcommand),
		slog.Int("exit", res.ExitCode),
		slog.Duration("duration", res.Duration),
	)
	return res
}

func appendDiagnostic(stderr, diag string) string {
	if strings.TrimSpace(stderr) == "" {
		return diag
	}
	return strings.TrimRight(stderr, "\n") + "\n" + diag
}

// Trim returns s with surrounding whitespace removed, for log lines.
func Trim(s string) string {
	return strings.TrimSpace(s)
}
