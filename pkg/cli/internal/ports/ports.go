// Package ports provides port binding helpers.
package ports

import (
	"errors"
	"syscall"
)

// InUse reports whether err is an address-in-use bind failure.
func InUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
