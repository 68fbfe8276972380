//go:build linux || darwin

package procwatch

import "golang.org/x/sys/unix"

// processExists sends signal 0, which performs permission/existence checks
// without actually signaling the process.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
