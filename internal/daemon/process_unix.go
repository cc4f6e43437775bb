//go:build !windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches a background child from the parent session
// so it survives the parent exiting.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

func signalProcess(process *os.Process, sig os.Signal) error {
	return process.Signal(sig)
}

// termSignal is the graceful-shutdown signal.
func termSignal() os.Signal {
	return syscall.SIGTERM
}

// checkAlive is the probe signal; signal 0 tests existence only.
func checkAlive() os.Signal {
	return syscall.Signal(0)
}
