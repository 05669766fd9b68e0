//go:build !windows

package daemon

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ProcessAlive reports whether pid names a live process
func ProcessAlive(pid int) bool {
	// Signal 0 only checks for existence; EPERM still means the process exists
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func stopProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}
