package channel

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// ErrInsufficientSpace is returned by Enqueue when the ring does not have
// room for the whole message or the length table is full. Nothing is
// written. It wraps iox.ErrWouldBlock: the caller may retry later.
var ErrInsufficientSpace = fmt.Errorf("insufficient space: %w", iox.ErrWouldBlock)

// ErrShortTransfer accompanies a successful Enqueue or Dequeue that moved
// fewer bytes than requested. The returned count or data are valid.
var ErrShortTransfer = errors.New("short transfer")

// IsWarning reports whether err only signals a short transfer and the
// operation otherwise succeeded.
func IsWarning(err error) bool {
	return errors.Is(err, ErrShortTransfer)
}
