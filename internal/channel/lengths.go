package channel

import "fmt"

// LengthTable is a fixed-capacity circular table of message lengths.
// Pending slots are [rd, wr) modulo the table size. One slot always stays
// unused so that a full table (wr+1 == rd) is distinct from an empty one
// (wr == rd); a table of size N therefore holds at most N-1 lengths.
type LengthTable struct {
	slots []uint32
	rd    int
	wr    int
}

// NewLengthTable creates a table with size slots. size must be at least 2.
func NewLengthTable(size int) (*LengthTable, error) {
	if size < 2 {
		return nil, fmt.Errorf("length table needs at least 2 slots, got %d", size)
	}
	return &LengthTable{slots: make([]uint32, size)}, nil
}

// Size returns the number of slots, including the one that is never filled.
func (t *LengthTable) Size() int { return len(t.slots) }

// Len returns the number of pending lengths.
func (t *LengthTable) Len() int {
	return (t.wr - t.rd + len(t.slots)) % len(t.slots)
}

// IsEmpty reports whether no lengths are pending.
func (t *LengthTable) IsEmpty() bool { return t.rd == t.wr }

// IsFull reports whether Push would be rejected.
func (t *LengthTable) IsFull() bool {
	return (t.wr+1)%len(t.slots) == t.rd
}

// Push records n at the write index. It returns false if the table is full.
func (t *LengthTable) Push(n uint32) bool {
	if t.IsFull() {
		return false
	}
	t.slots[t.wr] = n
	t.wr = (t.wr + 1) % len(t.slots)
	return true
}

// Peek returns the length at the read index without consuming it.
func (t *LengthTable) Peek() (uint32, bool) {
	if t.IsEmpty() {
		return 0, false
	}
	return t.slots[t.rd], true
}

// Pop consumes and returns the length at the read index.
func (t *LengthTable) Pop() (uint32, bool) {
	n, ok := t.Peek()
	if !ok {
		return 0, false
	}
	t.rd = (t.rd + 1) % len(t.slots)
	return n, true
}

// Sum returns the total of all pending lengths.
func (t *LengthTable) Sum() int {
	total := 0
	for i := t.rd; i != t.wr; i = (i + 1) % len(t.slots) {
		total += int(t.slots[i])
	}
	return total
}

// Reset empties the table and zeroes both indices.
func (t *LengthTable) Reset() {
	t.rd = 0
	t.wr = 0
}
