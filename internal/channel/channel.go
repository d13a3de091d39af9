package channel

import (
	"fmt"
	"log"
	"sync"

	"golang.org/x/crypto/sha3"
)

const (
	// DefaultRingSize is the byte capacity of the message ring.
	DefaultRingSize = 1024
	// DefaultMaxMessages is the number of length-table slots. At most
	// DefaultMaxMessages-1 messages can be pending.
	DefaultMaxMessages = 128
)

// Config holds construction parameters for a Channel. It is copied at
// construction and never consulted again.
type Config struct {
	RingSize    int
	MaxMessages int
	Debug       bool
	// Copy overrides the copy primitive. Nil means the builtin copy.
	Copy CopyFunc
}

// Stats is a point-in-time view of a Channel.
type Stats struct {
	Capacity    int `json:"capacity"`
	Used        int `json:"used"`
	Available   int `json:"available"`
	Pending     int `json:"pending"`
	MaxMessages int `json:"maxMessages"`
}

// Channel is a framed ring: a byte ring holding message payloads and a
// length table holding message boundaries, advanced in lockstep.
type Channel struct {
	mu      sync.Mutex
	ring    *ByteRing
	lengths *LengthTable
	cp      CopyFunc
	debug   bool
}

// New creates a Channel. Zero capacities fall back to the defaults.
func New(cfg Config) (*Channel, error) {
	if cfg.RingSize == 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}

	ring, err := NewByteRing(cfg.RingSize)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	lengths, err := NewLengthTable(cfg.MaxMessages)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	cp := cfg.Copy
	if cp == nil {
		cp = builtinCopy
	}

	return &Channel{
		ring:    ring,
		lengths: lengths,
		cp:      cp,
		debug:   cfg.Debug,
	}, nil
}

// Enqueue stores data as one message and returns the number of bytes
// stored. It fails with ErrInsufficientSpace, without writing anything, if
// the ring lacks room for all of data or the length table is full. If the
// copy primitive stores fewer bytes than offered, the stored prefix becomes
// the message and ErrShortTransfer is returned with the stored count.
// An empty data is accepted and stores nothing.
func (c *Channel) Enqueue(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.debug {
		c.debugf("enqueue %d bytes %s", len(data), fingerprint(data))
	}

	if c.ring.Avail() < len(data) {
		log.Printf("channel: not enough space left on fifo (%d < %d)", c.ring.Avail(), len(data))
		return 0, ErrInsufficientSpace
	}
	if c.lengths.IsFull() {
		log.Printf("channel: message length table is full")
		return 0, ErrInsufficientSpace
	}
	if len(data) == 0 {
		return 0, nil
	}

	copied := c.ring.In(data, c.cp)
	if copied == 0 {
		// Nothing reached the ring; an empty frame would read as no data.
		log.Printf("channel: short write detected (0 of %d bytes)", len(data))
		return 0, ErrShortTransfer
	}
	c.lengths.Push(uint32(copied))

	if copied != len(data) {
		log.Printf("channel: short write detected (%d of %d bytes)", copied, len(data))
		return copied, ErrShortTransfer
	}
	return copied, nil
}

// Dequeue removes the oldest message and returns up to maxLen bytes of it.
// It returns nil, nil when no message is pending. When the message is
// longer than maxLen, or the copy primitive moves fewer bytes, the copied
// prefix is returned with ErrShortTransfer and the rest of the message is
// discarded.
func (c *Channel) Dequeue(maxLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.lengths.Pop()
	if !ok {
		c.debugf("dequeue: no message in fifo")
		return nil, nil
	}

	frame := int(n)
	want := max(0, min(frame, maxLen))
	out := make([]byte, want)
	copied := c.ring.Out(out, c.cp)
	// Keep the ring aligned with the next frame boundary.
	c.ring.Skip(frame - copied)
	out = out[:copied]

	if c.debug {
		c.debugf("dequeue %d of %d bytes %s", copied, frame, fingerprint(out))
	}

	if copied != frame {
		log.Printf("channel: short read detected (%d of %d bytes)", copied, frame)
		return out, ErrShortTransfer
	}
	return out, nil
}

// Reset discards every pending message and zeroes all indices. It takes the
// same lock as Enqueue and Dequeue.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.debugf("reset")
	c.ring.Reset()
	c.lengths.Reset()
}

// IsEmpty reports whether no message is pending.
func (c *Channel) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lengths.IsEmpty()
}

// AvailableSpace returns the number of free bytes in the ring.
func (c *Channel) AvailableSpace() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.Avail()
}

// Stats returns the current occupancy.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Capacity:    c.ring.Cap(),
		Used:        c.ring.Len(),
		Available:   c.ring.Avail(),
		Pending:     c.lengths.Len(),
		MaxMessages: c.lengths.Size(),
	}
}

func (c *Channel) debugf(format string, args ...interface{}) {
	if c.debug {
		log.Printf("channel: "+format, args...)
	}
}

// fingerprint returns a short SHA3-256 digest of p for debug output.
func fingerprint(p []byte) string {
	sum := sha3.Sum256(p)
	return fmt.Sprintf("sha3:%x", sum[:6])
}
