package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowork/flowork-deck/internal/ipc"
	"github.com/flowork/flowork-deck/internal/logging"
	"github.com/flowork/flowork-deck/internal/platform"
	"github.com/flowork/flowork-deck/internal/plugin"
	"github.com/flowork/flowork-deck/internal/recorder"
	"github.com/flowork/flowork-deck/internal/statedb"
	"github.com/flowork/flowork-deck/internal/web"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	listen     string
	web        bool
	readOnly   bool
	token      string
	socket     string
	foreground bool
}

func parseServeFlags(args []string, stderr io.Writer) (serveOptions, error) {
	webCfg := plugin.GetWebSettings()
	ipcCfg := plugin.GetIPCSettings()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	listen := fs.String("listen", webCfg.Listen, "Listen address for the display feed")
	webOn := fs.Bool("web", webCfg.Enabled, "Serve the browser display feed")
	readOnly := fs.Bool("read-only", webCfg.ReadOnly, "Reject presses from the display feed")
	token := fs.String("token", webCfg.Token, "Bearer token for the display feed")
	socket := fs.String("socket", ipcCfg.SocketPath, "Control socket path")
	foreground := fs.Bool("foreground", false, "Mirror logs to stderr")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: flowork-deck serve [options]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Host the configured buttons until interrupted.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return serveOptions{}, err
	}
	if fs.NArg() > 0 {
		return serveOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return serveOptions{
		listen:     *listen,
		web:        *webOn,
		readOnly:   *readOnly,
		token:      *token,
		socket:     *socket,
		foreground: *foreground,
	}, nil
}

func handleServe(args []string, stdout, stderr io.Writer) int {
	opts, err := parseServeFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var console io.Writer
	if opts.foreground {
		console = stderr
	}
	dataDir := initLogging(console)
	defer logging.Shutdown()

	if _, err := plugin.LoadUserConfig(); err != nil {
		// Defaults are in effect; say so once.
		fmt.Fprintf(stderr, "Warning: %v (using defaults)\n", err)
	}

	stopDump := make(chan struct{})
	defer close(stopDump)
	if dataDir != "" {
		watchDumpSignal(dataDir, stopDump)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, opts, stdout); err != nil {
		cliLog.Error("serve_failed", slog.String("error", err.Error()))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// serve hosts the registry until ctx ends. Commands are unloaded on the
// way out so an active recording is stopped.
func serve(ctx context.Context, opts serveOptions, stdout io.Writer) error {
	if !platform.SupportsUnixSockets() {
		return fmt.Errorf("control socket not supported on %s", platform.Detect())
	}

	db, history := openHistory()
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				cliLog.Warn("history_close_failed", slog.String("error", err.Error()))
			}
		}()
	}

	registry := plugin.NewRegistry()
	if err := plugin.RegisterConfigured(registry, history); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	if err := registry.LoadAll(); err != nil {
		cliLog.Warn("load_incomplete", slog.String("error", err.Error()))
	}
	defer func() {
		if err := registry.UnloadAll(); err != nil {
			cliLog.Warn("unload_incomplete", slog.String("error", err.Error()))
		}
		if db != nil {
			if n, err := db.CloseDangling(time.Now()); err == nil && n > 0 {
				cliLog.Info("history_closed_dangling", slog.Int64("sessions", n))
			}
		}
	}()

	cliLog.Info("serve_started",
		slog.String("version", Version),
		slog.Any("commands", registry.Names()),
		slog.String("socket", opts.socket),
		slog.Bool("web", opts.web))

	g, gctx := errgroup.WithContext(ctx)

	ipcServer := ipc.NewServer(opts.socket, registry)
	g.Go(func() error {
		return ipcServer.Run(gctx)
	})
	fmt.Fprintf(stdout, "Control socket: %s\n", opts.socket)

	if opts.web {
		webServer := web.NewServer(web.Config{
			ListenAddr: opts.listen,
			Token:      opts.token,
			ReadOnly:   opts.readOnly,
		}, registry)
		g.Go(func() error {
			if err := webServer.Start(); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return webServer.Shutdown(shutdownCtx)
		})
		fmt.Fprintf(stdout, "Display feed: http://%s/\n", opts.listen)
	}

	err := g.Wait()
	cliLog.Info("serve_stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openHistory opens the session history database when enabled. Failures
// are logged and history is skipped; the buttons work without it.
func openHistory() (*statedb.StateDB, recorder.History) {
	hs := plugin.GetHistorySettings()
	if !hs.GetEnabled() || hs.DBPath == "" {
		return nil, nil
	}
	db, err := statedb.Open(hs.DBPath)
	if err != nil {
		cliLog.Warn("history_open_failed", slog.String("path", hs.DBPath), slog.String("error", err.Error()))
		return nil, nil
	}
	if err := db.Migrate(); err != nil {
		cliLog.Warn("history_migrate_failed", slog.String("error", err.Error()))
		_ = db.Close()
		return nil, nil
	}
	if n, err := db.CloseDangling(time.Now()); err == nil && n > 0 {
		cliLog.Info("history_closed_dangling", slog.Int64("sessions", n))
	}
	if err := db.Touch(); err != nil {
		cliLog.Warn("history_touch_failed", slog.String("error", err.Error()))
	}
	return db, db
}
