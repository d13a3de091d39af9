package channel

import "fmt"

// CopyFunc moves bytes from src into dst and reports how many were moved.
// It may move fewer than min(len(dst), len(src)) bytes, which the channel
// reports as a short transfer.
type CopyFunc func(dst, src []byte) int

func builtinCopy(dst, src []byte) int { return copy(dst, src) }

// ByteRing is a fixed-capacity circular buffer of raw bytes.
// The in/out cursors grow monotonically and are masked on access, so
// in-out is always the number of unread bytes.
type ByteRing struct {
	buf  []byte
	mask uint
	in   uint // next write position (unmasked)
	out  uint // next read position (unmasked)
}

// NewByteRing creates a ring with the given capacity, which must be a
// positive power of two.
func NewByteRing(capacity int) (*ByteRing, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring capacity must be a positive power of two, got %d", capacity)
	}
	return &ByteRing{
		buf:  make([]byte, capacity),
		mask: uint(capacity - 1),
	}, nil
}

// Cap returns the ring capacity in bytes.
func (r *ByteRing) Cap() int { return len(r.buf) }

// Len returns the number of unread bytes.
func (r *ByteRing) Len() int { return int(r.in - r.out) }

// Avail returns the number of bytes that can be written without
// overwriting unread data.
func (r *ByteRing) Avail() int { return len(r.buf) - r.Len() }

// IsEmpty reports whether the ring holds no unread bytes.
func (r *ByteRing) IsEmpty() bool { return r.in == r.out }

// In appends up to len(p) bytes at the tail using cp and returns the
// number of bytes stored. It never writes more than Avail().
func (r *ByteRing) In(p []byte, cp CopyFunc) int {
	n := min(len(p), r.Avail())
	if n == 0 {
		return 0
	}

	pos := int(r.in & r.mask)
	first := min(n, len(r.buf)-pos)

	copied := cp(r.buf[pos:pos+first], p[:first])
	if copied == first && first < n {
		// Wrapped: the rest goes to the front of the buffer.
		copied += cp(r.buf[:n-first], p[first:n])
	}

	r.in += uint(copied)
	return copied
}

// Out copies up to len(p) bytes from the head into p using cp, consumes
// them, and returns the number of bytes copied.
func (r *ByteRing) Out(p []byte, cp CopyFunc) int {
	n := min(len(p), r.Len())
	if n == 0 {
		return 0
	}

	pos := int(r.out & r.mask)
	first := min(n, len(r.buf)-pos)

	copied := cp(p[:first], r.buf[pos:pos+first])
	if copied == first && first < n {
		copied += cp(p[first:n], r.buf[:n-first])
	}

	r.out += uint(copied)
	return copied
}

// Skip discards up to n unread bytes from the head and returns how many
// were discarded.
func (r *ByteRing) Skip(n int) int {
	n = max(0, min(n, r.Len()))
	r.out += uint(n)
	return n
}

// Reset discards all unread bytes.
func (r *ByteRing) Reset() {
	r.in = 0
	r.out = 0
}
