// Package ipc exposes the running deck host over a Unix domain socket.
//
// Protocol: line-delimited JSON.
//   - Client sends: {"op":"press","command":"record","param":""}
//   - Server responds: {"status":"ok","label":"REC● Marks: 0"} or
//     {"status":"error","error":"..."}
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/flowork/flowork-deck/internal/logging"
	"github.com/flowork/flowork-deck/internal/plugin"
)

var ipcLog = logging.ForComponent(logging.CompIPC)

// Operations.
const (
	OpPress  = "press"
	OpLabel  = "label"
	OpLabels = "labels"
	OpList   = "list"
	OpLogs   = "logs"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// maxLogLines caps a single logs reply.
const maxLogLines = 1000

// Request is one client line.
type Request struct {
	Op      string `json:"op"`
	Command string `json:"command,omitempty"`
	Param   string `json:"param,omitempty"`
	Lines   int    `json:"lines,omitempty"`
}

// CommandInfo describes a registered command in list replies.
type CommandInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Group       string `json:"group"`
	Label       string `json:"label"`
}

// Response is one server line.
type Response struct {
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Label       string            `json:"label,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Commands    []CommandInfo     `json:"commands,omitempty"`
	Lines       []string          `json:"lines,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

// Host is what the server drives. *plugin.Registry implements it.
type Host interface {
	Press(name, param string) error
	Label(name, param string) (string, error)
	Labels() map[string]string
	Commands() []plugin.Command
	Names() []string
}

// Server accepts connections on a Unix socket until its context ends.
type Server struct {
	socketPath string
	host       Host

	wg sync.WaitGroup
}

// NewServer builds a server for host on socketPath.
func NewServer(socketPath string, host Host) *Server {
	return &Server{socketPath: socketPath, host: host}
}

// Run listens until ctx is canceled, then closes the listener, waits for
// open connections and removes the socket file.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := clearStaleSocket(s.socketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	defer os.Remove(s.socketPath)

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	ipcLog.Info("ipc_listening", slog.String("socket", s.socketPath))

	connCtx, cancelConns := context.WithCancel(ctx)
	defer cancelConns()
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				ipcLog.Debug("ipc_listener_closed")
				cancelConns()
				s.wg.Wait()
				return nil
			}
			ipcLog.Error("ipc_accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go s.handleConn(connCtx, conn)
	}
}

// ErrHostRunning is returned by Run when another host answers on the socket.
var ErrHostRunning = errors.New("deck host already running")

// clearStaleSocket removes a socket file left by a host that is gone. A
// socket that still accepts connections is left alone.
func clearStaleSocket(path string) error {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w (socket %s)", ErrHostRunning, path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ipcLog.Info("ipc_stale_socket_removed", slog.String("socket", path))
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp = errorResponse(fmt.Errorf("parse request: %w", err))
		} else {
			resp = s.dispatch(req)
		}
		if err := encoder.Encode(resp); err != nil {
			ipcLog.Warn("ipc_reply_failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	ipcLog.Debug("ipc_request", slog.String("op", req.Op), slog.String("command", req.Command))

	switch req.Op {
	case OpPress:
		if err := s.host.Press(req.Command, req.Param); err != nil {
			return s.commandError(req.Command, err)
		}
		label, _ := s.host.Label(req.Command, req.Param)
		return Response{Status: StatusOK, Label: label}

	case OpLabel:
		label, err := s.host.Label(req.Command, req.Param)
		if err != nil {
			return s.commandError(req.Command, err)
		}
		return Response{Status: StatusOK, Label: label}

	case OpLabels:
		return Response{Status: StatusOK, Labels: s.host.Labels()}

	case OpList:
		cmds := s.host.Commands()
		infos := make([]CommandInfo, 0, len(cmds))
		for _, c := range cmds {
			infos = append(infos, CommandInfo{
				Name:        c.Name(),
				DisplayName: c.DisplayName(),
				Group:       c.Group(),
				Label:       c.GetDisplayLabel(""),
			})
		}
		return Response{Status: StatusOK, Commands: infos}

	case OpLogs:
		n := req.Lines
		if n <= 0 || n > maxLogLines {
			n = maxLogLines
		}
		return Response{Status: StatusOK, Lines: logging.RecentLines(n)}

	default:
		return errorResponse(fmt.Errorf("unknown op %q", req.Op))
	}
}

func (s *Server) commandError(name string, err error) Response {
	resp := errorResponse(err)
	if errors.Is(err, plugin.ErrUnknownCommand) {
		resp.Suggestions = plugin.Suggest(s.host.Names(), name)
	}
	return resp
}

func errorResponse(err error) Response {
	return Response{Status: StatusError, Error: err.Error()}
}
