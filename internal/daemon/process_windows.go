//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows (Setsid not available).
func setSysProcAttr(_ *exec.Cmd) {}

func signalProcess(process *os.Process, sig os.Signal) error {
	return process.Signal(sig)
}

// termSignal is the graceful-shutdown signal. On Windows, os.Kill is
// the only reliable one.
func termSignal() os.Signal {
	return os.Kill
}

// checkAlive is the probe signal. Windows has no signal 0, so probing
// degrades to os.Kill semantics via FindProcess.
func checkAlive() os.Signal {
	return os.Kill
}
