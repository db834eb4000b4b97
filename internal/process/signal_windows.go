//go:build windows

package process

import "os"

// Windows has no SIGTERM; Process.Signal only supports os.Kill there.
// On Windows Deallocate's first phase therefore already kills the
// children outright, and the later escalation to Kill finds nothing
// left to stop.
func terminateSignal() os.Signal {
	return os.Kill
}
