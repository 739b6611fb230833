//go:build windows

package process

import (
	"os"
	"os/exec"
)

var (
	terminateSignal os.Signal = os.Kill
	killSignal      os.Signal = os.Kill
)

func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup kills the process; Windows has no process groups we can signal.
func signalGroup(cmd *exec.Cmd, _ os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Kill()
	return nil
}
