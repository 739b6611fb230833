//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
)

var (
	terminateSignal os.Signal = syscall.SIGTERM
	killSignal      os.Signal = syscall.SIGKILL
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to every process in the group led by cmd.
func signalGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig.(syscall.Signal))
	if err == syscall.ESRCH {
		return nil
	}
	return errors.WithStack(err)
}
