package session

import (
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/iox"
)

// State represents whether the consumer session is held.
type State string

const (
	StateFree State = "free"
	StateHeld State = "held"
)

// Mode is the access mode requested when opening the session.
type Mode string

const (
	ModeRead      Mode = "r"
	ModeWrite     Mode = "w"
	ModeReadWrite Mode = "rw"
)

// Valid reports whether m is a known access mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRead, ModeWrite, ModeReadWrite:
		return true
	}
	return false
}

// Writable reports whether m asks for write access.
func (m Mode) Writable() bool {
	return m == ModeWrite || m == ModeReadWrite
}

var (
	// ErrAlreadyHeld is returned by Acquire when another holder is active.
	// It wraps iox.ErrWouldBlock: the caller is rejected, not queued.
	ErrAlreadyHeld = fmt.Errorf("session already held: %w", iox.ErrWouldBlock)

	// ErrPermissionDenied is returned for any write through the consumer
	// session.
	ErrPermissionDenied = errors.New("write access is prohibited")

	// ErrNotHeld is returned by ReadOne when no session is open.
	ErrNotHeld = errors.New("session not held")
)

// Info is a snapshot of the session state.
type Info struct {
	ID         string     `json:"id,omitempty"`
	State      State      `json:"state"`
	AcquiredAt *time.Time `json:"acquiredAt,omitempty"`
	Delivered  bool       `json:"delivered"`
	OneShot    bool       `json:"oneShot"`
}
