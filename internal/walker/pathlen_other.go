//go:build !windows

package walker

import (
	"errors"
	"syscall"
)

func isPathTooLong(err error) bool {
	return errors.Is(err, syscall.ENAMETOOLONG)
}
