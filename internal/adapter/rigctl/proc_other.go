//go:build !unix

package rigctl

import "os/exec"

func isolate(cmd *exec.Cmd) {}

func reap(cmd *exec.Cmd, waitErr error) {}
