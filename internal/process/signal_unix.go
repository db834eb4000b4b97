//go:build !windows

package process

import "syscall"

func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}
