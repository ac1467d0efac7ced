package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flowork/flowork-deck/internal/logging"
	"github.com/flowork/flowork-deck/internal/plugin"
)

var webLog = logging.ForComponent(logging.CompWeb)

// Config defines runtime options for the display feed server.
type Config struct {
	ListenAddr string
	Token      string

	// ReadOnly rejects presses from the browser.
	ReadOnly bool

	// ClientBuffer is the per-client queue length; a client that falls
	// this far behind is disconnected.
	ClientBuffer int
}

// DeckHost is the command surface the server renders and drives.
// *plugin.Registry implements it.
type DeckHost interface {
	Commands() []plugin.Command
	Labels() map[string]string
	Label(name, param string) (string, error)
	Press(name, param string) error
	Subscribe(fn plugin.DisplayObserver) func()
}

// Server serves the button labels over WebSocket and SSE.
type Server struct {
	cfg         Config
	host        DeckHost
	hub         *hub
	httpServer  *http.Server
	baseCtx     context.Context
	cancelBase  context.CancelFunc
	unsubscribe func()
}

// NewServer creates the server and subscribes it to host label changes.
func NewServer(cfg Config, host DeckHost) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8420"
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 32
	}

	s := &Server{
		cfg:  cfg,
		host: host,
		hub:  newHub(cfg.ClientBuffer),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.unsubscribe = host.Subscribe(s.onDisplayChanged)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/commands", s.handleCommands)
	mux.HandleFunc("POST /api/commands/{name}/press", s.handlePress)
	mux.HandleFunc("GET /events/display", s.handleDisplayEvents)
	mux.HandleFunc("GET /ws/display", s.handleDisplayWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown. Returns nil on graceful shutdown.
func (s *Server) Start() error {
	webLog.Info("web_listening", slog.String("addr", s.cfg.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the feed, disconnects clients and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	// Long-lived handlers watch baseCtx.
	s.cancelBase()
	s.hub.closeAll()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) onDisplayChanged(command string) {
	label, err := s.host.Label(command, "")
	if err != nil {
		webLog.Warn("label_lookup_failed", slog.String("command", command), slog.String("error", err.Error()))
		return
	}
	s.hub.broadcast(displayEvent{
		Type:    eventLabelChanged,
		Command: command,
		Label:   label,
		TS:      time.Now().UTC(),
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("display-server(addr=%s, readOnly=%t)", s.cfg.ListenAddr, s.cfg.ReadOnly)
}
