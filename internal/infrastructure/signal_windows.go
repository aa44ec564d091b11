//go:build windows

package infrastructure

import "os"

// signalTerminate kills the process; Windows has no deliverable SIGTERM
func signalTerminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Kill()
}
