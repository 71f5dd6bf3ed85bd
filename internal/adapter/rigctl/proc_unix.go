//go:build unix

package rigctl

import (
	"errors"
	"os/exec"
	"syscall"
)

var killGroup = func(pgid int) error {
	return syscall.Kill(-pgid, syscall.SIGKILL)
}

// isolate starts the child in its own process group so a timeout can kill
// anything it forked.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process.Pid)
	}
}

// reap kills descendants that outlived the leader. It only signals when Wait
// gave up on the output pipes: those descendants still hold the group id, so
// it cannot have been reused. A group that emptied cleanly is left alone.
func reap(cmd *exec.Cmd, waitErr error) {
	if cmd.Process == nil || !errors.Is(waitErr, exec.ErrWaitDelay) {
		return
	}
	_ = killGroup(cmd.Process.Pid)
}
