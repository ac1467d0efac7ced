//go:build !windows

package toggle

import (
	"errors"
	"os/exec"
	"syscall"
)

// isolate starts the helper in its own process group so stop reaches the
// processes it spawns.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killGroup kills the helper's process group, falling back to the helper
// alone when the group is already gone.
func killGroup(cmd *exec.Cmd) error {
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return cmd.Process.Kill()
}
