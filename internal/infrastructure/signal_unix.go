//go:build !windows

package infrastructure

import (
	"os"
	"syscall"
)

// signalTerminate asks the process to exit gracefully
func signalTerminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Signal(syscall.SIGTERM)
}
