package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
	"time"
)

// ErrHostNotRunning is returned when nothing listens on the socket.
var ErrHostNotRunning = errors.New("deck host is not running")

// DefaultTimeout bounds a client round-trip. Presses can wait on the
// record helper, so it is generous.
const DefaultTimeout = 60 * time.Second

// RemoteError carries a server-side error reply.
type RemoteError struct {
	Message     string
	Suggestions []string
}

func (e *RemoteError) Error() string { return e.Message }

// Client talks to a running host.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// NewClient returns a client for socketPath.
func NewClient(socketPath string) *Client {
	return &Client{SocketPath: socketPath, Timeout: DefaultTimeout}
}

// Do sends one request and reads one reply.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w (socket %s)", ErrHostNotRunning, c.SocketPath)
		}
		return nil, fmt.Errorf("connect to %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != StatusOK {
		return &resp, &RemoteError{Message: resp.Error, Suggestions: resp.Suggestions}
	}
	return &resp, nil
}

// Press presses a command and returns its new label.
func (c *Client) Press(ctx context.Context, command, param string) (string, error) {
	resp, err := c.Do(ctx, Request{Op: OpPress, Command: command, Param: param})
	if err != nil {
		return "", err
	}
	return resp.Label, nil
}

// Label returns one command's label.
func (c *Client) Label(ctx context.Context, command, param string) (string, error) {
	resp, err := c.Do(ctx, Request{Op: OpLabel, Command: command, Param: param})
	if err != nil {
		return "", err
	}
	return resp.Label, nil
}

// List returns every registered command.
func (c *Client) List(ctx context.Context) ([]CommandInfo, error) {
	resp, err := c.Do(ctx, Request{Op: OpList})
	if err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// Logs returns up to n recent host log lines.
func (c *Client) Logs(ctx context.Context, n int) ([]string, error) {
	resp, err := c.Do(ctx, Request{Op: OpLogs, Lines: n})
	if err != nil {
		return nil, err
	}
	return resp.Lines, nil
}
