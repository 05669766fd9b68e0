//go:build windows

package walker

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// isPathTooLong reports a path rejected for its length. Win32 reports
// ERROR_FILENAME_EXCED_RANGE rather than an errno.
func isPathTooLong(err error) bool {
	return errors.Is(err, windows.ERROR_FILENAME_EXCED_RANGE) || errors.Is(err, syscall.ENAMETOOLONG)
}
