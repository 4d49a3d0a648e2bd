//go:build windows

package supervise

import "os"

// terminate ends the process via its handle. Windows has no graceful
// signal for console-less children, so both paths use Kill; the graceful
// request simply goes first.
func terminate(pid int, graceful bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
