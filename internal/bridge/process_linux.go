//go:build linux

package bridge

import (
	"errors"

	"golang.org/x/sys/unix"
)

// waitExited blocks until pid has exited but leaves it unreaped, so the pid
// and its process group id stay reserved until cmd.Wait runs.
func waitExited(pid int) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == nil {
			return true
		}
		if !errors.Is(err, unix.EINTR) {
			return false
		}
	}
}
