//go:build !windows

package supervise

import "syscall"

// terminate signals the process: SIGTERM for a graceful request, SIGKILL
// for the single forced kill after the stop timeout.
func terminate(pid int, graceful bool) error {
	sig := syscall.SIGKILL
	if graceful {
		sig = syscall.SIGTERM
	}
	return syscall.Kill(pid, sig)
}
