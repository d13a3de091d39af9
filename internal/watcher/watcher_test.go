package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parrot/internal/channel"
)

// newTestWatcher prepares a control directory. Only started watchers react
// to file events; Apply tests leave it unstarted so no timer races them.
func newTestWatcher(t *testing.T, start bool) (*Watcher, *channel.Channel) {
	t.Helper()
	ch, err := channel.New(channel.Config{RingSize: 16, MaxMessages: 4})
	if err != nil {
		t.Fatalf("channel.New failed: %v", err)
	}
	w := New(filepath.Join(t.TempDir(), "parrot"), ch, false)
	if !start {
		if err := w.prepare(); err != nil {
			t.Fatalf("prepare failed: %v", err)
		}
		return w, ch
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Shutdown)
	return w, ch
}

func writeAttr(t *testing.T, w *Watcher, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(w.Dir(), name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestStart_CreatesAttributes(t *testing.T) {
	w, _ := newTestWatcher(t, true)
	for _, name := range []string{AttrFifo, AttrReset} {
		info, err := os.Stat(filepath.Join(w.Dir(), name))
		if err != nil {
			t.Fatalf("expected %s attribute: %v", name, err)
		}
		if info.Size() != 0 {
			t.Errorf("expected empty %s attribute, got %d bytes", name, info.Size())
		}
	}
}

func TestApply_Fifo(t *testing.T) {
	w, ch := newTestWatcher(t, false)
	writeAttr(t, w, AttrFifo, "alpha")

	if err := w.Apply(AttrFifo); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	data, err := ch.Dequeue(16)
	if err != nil || string(data) != "alpha" {
		t.Errorf("expected alpha, got %q, %v", data, err)
	}
	info, _ := os.Stat(filepath.Join(w.Dir(), AttrFifo))
	if info.Size() != 0 {
		t.Errorf("expected fifo attribute to be emptied, got %d bytes", info.Size())
	}
	if _, err := os.Stat(filepath.Join(w.Dir(), AttrFifo+pendingSuffix)); !os.IsNotExist(err) {
		t.Errorf("expected consumed file to be removed, got %v", err)
	}
}

func TestApply_FifoKeepsLaterWrites(t *testing.T) {
	w, ch := newTestWatcher(t, false)
	writeAttr(t, w, AttrFifo, "alpha")
	if err := w.Apply(AttrFifo); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// A write that arrives after the first consume is its own message.
	writeAttr(t, w, AttrFifo, "beta")
	if err := w.Apply(AttrFifo); err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}

	for _, want := range []string{"alpha", "beta"} {
		data, err := ch.Dequeue(16)
		if err != nil || string(data) != want {
			t.Errorf("expected %s, got %q, %v", want, data, err)
		}
	}
}

func TestApply_EmptyIsIgnored(t *testing.T) {
	w, ch := newTestWatcher(t, false)
	if err := w.Apply(AttrFifo); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !ch.IsEmpty() {
		t.Error("expected empty attribute not to enqueue")
	}
}

func TestApply_FifoTooLarge(t *testing.T) {
	w, ch := newTestWatcher(t, false)
	writeAttr(t, w, AttrFifo, "this message is too long")

	err := w.Apply(AttrFifo)
	if !errors.Is(err, channel.ErrInsufficientSpace) {
		t.Fatalf("expected ErrInsufficientSpace, got %v", err)
	}
	if !ch.IsEmpty() {
		t.Error("expected channel to stay empty")
	}
}

func TestApply_Reset(t *testing.T) {
	w, ch := newTestWatcher(t, false)
	ch.Enqueue([]byte("alpha"))
	writeAttr(t, w, AttrReset, "1")

	if err := w.Apply(AttrReset); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !ch.IsEmpty() {
		t.Error("expected channel to be empty after reset")
	}
}

func TestWatch_FifoEvent(t *testing.T) {
	w, ch := newTestWatcher(t, true)
	writeAttr(t, w, AttrFifo, "beta")

	deadline := time.Now().Add(3 * time.Second)
	for ch.IsEmpty() {
		if time.Now().After(deadline) {
			t.Fatal("expected fifo write to be enqueued")
		}
		time.Sleep(20 * time.Millisecond)
	}

	data, _ := ch.Dequeue(16)
	if string(data) != "beta" {
		t.Errorf("expected beta, got %q", data)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	w, _ := newTestWatcher(t, true)
	w.Shutdown()
	w.Shutdown()
}
