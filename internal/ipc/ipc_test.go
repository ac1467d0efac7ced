package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowork/flowork-deck/internal/plugin"
)

type fakeButton struct {
	name string

	mu      sync.Mutex
	pressed int
}

func (f *fakeButton) Name() string        { return f.name }
func (f *fakeButton) DisplayName() string { return "Fake " + f.name }
func (f *fakeButton) Group() string       { return "test" }
func (f *fakeButton) OnLoad() error       { return nil }
func (f *fakeButton) OnUnload() error     { return nil }

func (f *fakeButton) RunCommand(string) {
	f.mu.Lock()
	f.pressed++
	f.mu.Unlock()
}

func (f *fakeButton) GetDisplayLabel(string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pressed%2 == 1 {
		return "On"
	}
	return "Off"
}

// shortSocketPath keeps the path under the Unix socket length limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "fd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func startServer(t *testing.T) (*Client, *fakeButton, string) {
	t.Helper()
	reg := plugin.NewRegistry()
	btn := &fakeButton{name: "record"}
	require.NoError(t, reg.Register(btn))
	require.NoError(t, reg.Register(&fakeButton{name: "touchpad"}))

	sock := shortSocketPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(sock, reg)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	client := NewClient(sock)
	client.Timeout = 5 * time.Second
	return client, btn, sock
}

func TestPressAndLabel(t *testing.T) {
	client, btn, _ := startServer(t)
	ctx := context.Background()

	label, err := client.Label(ctx, "record", "")
	require.NoError(t, err)
	assert.Equal(t, "Off", label)

	label, err = client.Press(ctx, "record", "")
	require.NoError(t, err)
	assert.Equal(t, "On", label)
	assert.Equal(t, 1, btn.pressed)
}

func TestListAndLabels(t *testing.T) {
	client, _, _ := startServer(t)
	ctx := context.Background()

	cmds, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "record", cmds[0].Name)
	assert.Equal(t, "Fake touchpad", cmds[1].DisplayName)

	resp, err := client.Do(ctx, Request{Op: OpLabels})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"record": "Off", "touchpad": "Off"}, resp.Labels)
}

func TestUnknownCommandSuggests(t *testing.T) {
	client, _, _ := startServer(t)

	_, err := client.Press(context.Background(), "recrd", "")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "unknown command")
	assert.Contains(t, remote.Suggestions, "record")
}

func TestBadRequests(t *testing.T) {
	client, _, _ := startServer(t)

	_, err := client.Do(context.Background(), Request{Op: "explode"})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, `unknown op "explode"`)
}

func TestLogsOp(t *testing.T) {
	client, _, _ := startServer(t)
	_, err := client.Logs(context.Background(), 10)
	require.NoError(t, err)
}

func TestHostNotRunning(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := client.List(context.Background())
	assert.True(t, errors.Is(err, ErrHostNotRunning), "got %v", err)
}

func TestSocketRemovedOnShutdown(t *testing.T) {
	reg := plugin.NewRegistry()
	sock := shortSocketPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(sock, reg).Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, err := os.Stat(sock)
	assert.True(t, os.IsNotExist(err))
}

func TestSecondServerLeavesLiveSocketAlone(t *testing.T) {
	client, _, sock := startServer(t)

	err := NewServer(sock, plugin.NewRegistry()).Run(context.Background())
	require.ErrorIs(t, err, ErrHostRunning)

	label, err := client.Label(context.Background(), "record", "")
	require.NoError(t, err)
	assert.Equal(t, "Off", label)
}

func TestStaleSocketIsReplaced(t *testing.T) {
	sock := shortSocketPath(t)
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, l.Close())
	_, err = os.Stat(sock)
	require.NoError(t, err, "closed listener should leave its socket file behind")

	reg := plugin.NewRegistry()
	require.NoError(t, reg.Register(&fakeButton{name: "record"}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(sock, reg).Run(ctx) }()

	client := NewClient(sock)
	require.Eventually(t, func() bool {
		_, err := client.Label(context.Background(), "record", "")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
