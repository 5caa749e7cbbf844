//go:build unix

package cache

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isNoSpace reports whether a write failed because the volume or the user's
// disk quota is exhausted.
func isNoSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}
