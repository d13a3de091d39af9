package channel

import (
	"bytes"
	"testing"
)

func TestByteRing_EmptyAndFull(t *testing.T) {
	r, err := NewByteRing(8)
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsEmpty() || r.Avail() != 8 {
		t.Fatalf("expected empty ring with 8 free bytes, got len=%d avail=%d", r.Len(), r.Avail())
	}

	if n := r.In([]byte("12345678"), builtinCopy); n != 8 {
		t.Fatalf("expected 8 bytes written, got %d", n)
	}
	if r.IsEmpty() || r.Avail() != 0 || r.Len() != 8 {
		t.Errorf("expected full ring, got len=%d avail=%d", r.Len(), r.Avail())
	}

	// A full ring refuses further bytes instead of overwriting.
	if n := r.In([]byte("9"), builtinCopy); n != 0 {
		t.Errorf("expected full ring to accept 0 bytes, got %d", n)
	}
}

func TestByteRing_Wrap(t *testing.T) {
	r, _ := NewByteRing(8)
	r.In([]byte("abcdef"), builtinCopy)
	buf := make([]byte, 4)
	r.Out(buf, builtinCopy)

	if n := r.In([]byte("ghijkl"), builtinCopy); n != 6 {
		t.Fatalf("expected 6 bytes written across the wrap, got %d", n)
	}

	out := make([]byte, 8)
	n := r.Out(out, builtinCopy)
	if got := out[:n]; !bytes.Equal(got, []byte("efghijkl")) {
		t.Errorf("expected %q, got %q", "efghijkl", got)
	}
}

func TestByteRing_Skip(t *testing.T) {
	r, _ := NewByteRing(8)
	r.In([]byte("abcdef"), builtinCopy)
	if n := r.Skip(4); n != 4 {
		t.Fatalf("expected 4 bytes skipped, got %d", n)
	}
	if n := r.Skip(10); n != 2 {
		t.Errorf("expected skip to stop at unread bytes, got %d", n)
	}
	if !r.IsEmpty() {
		t.Error("expected ring to be empty")
	}
}

func TestByteRing_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -4, 3, 12} {
		if _, err := NewByteRing(c); err == nil {
			t.Errorf("expected error for capacity %d", c)
		}
	}
}

func TestLengthTable_WrapAndFull(t *testing.T) {
	lt, err := NewLengthTable(3)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		op      string
		value   uint32
		wantOK  bool
		wantVal uint32
		wantLen int
	}{
		{"push", 10, true, 0, 1},
		{"push", 20, true, 0, 2},
		{"push", 30, false, 0, 2},
		{"pop", 0, true, 10, 1},
		{"push", 30, true, 0, 2},
		{"pop", 0, true, 20, 1},
		{"pop", 0, true, 30, 0},
		{"pop", 0, false, 0, 0},
	}

	for i, tt := range tests {
		switch tt.op {
		case "push":
			if ok := lt.Push(tt.value); ok != tt.wantOK {
				t.Errorf("step %d: push ok=%v, want %v", i, ok, tt.wantOK)
			}
		case "pop":
			v, ok := lt.Pop()
			if ok != tt.wantOK || v != tt.wantVal {
				t.Errorf("step %d: pop = (%d, %v), want (%d, %v)", i, v, ok, tt.wantVal, tt.wantOK)
			}
		}
		if lt.Len() != tt.wantLen {
			t.Errorf("step %d: len = %d, want %d", i, lt.Len(), tt.wantLen)
		}
	}
}

func TestLengthTable_Reset(t *testing.T) {
	lt, _ := NewLengthTable(4)
	lt.Push(1)
	lt.Push(2)
	lt.Reset()
	if !lt.IsEmpty() || lt.Sum() != 0 {
		t.Errorf("expected empty table after reset, len=%d sum=%d", lt.Len(), lt.Sum())
	}
}
