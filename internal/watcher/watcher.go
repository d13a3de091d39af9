package watcher

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"parrot/internal/channel"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 200 * time.Millisecond

// pendingSuffix names an attribute file while it is being consumed.
const pendingSuffix = ".consume"

// Attribute file names inside the control directory.
const (
	AttrFifo  = "fifo"
	AttrReset = "reset"
)

// Target is the channel driven by the control directory.
type Target interface {
	Enqueue(data []byte) (int, error)
	Reset()
}

// Watcher exposes a channel as a directory of attribute files. Bytes
// written to the fifo file are enqueued as one message; any write to the
// reset file empties the channel. Each file is emptied once consumed.
type Watcher struct {
	dir    string
	target Target
	debug  bool

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	timers    map[string]*time.Timer
}

// New creates a watcher for dir. Call Start to begin watching.
func New(dir string, target Target, debug bool) *Watcher {
	return &Watcher{
		dir:    dir,
		target: target,
		debug:  debug,
		timers: make(map[string]*time.Timer),
	}
}

// Dir returns the control directory.
func (w *Watcher) Dir() string { return w.dir }

// Start creates the control directory and its attribute files and begins
// watching them.
func (w *Watcher) Start() error {
	if err := w.prepare(); err != nil {
		return err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(w.dir); err != nil {
		fsW.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.fsWatcher = fsW
	w.cancel = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop(fsW, w.cancel)
	return nil
}

// prepare creates the control directory and empty attribute files.
func (w *Watcher) prepare() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	for _, name := range []string{AttrFifo, AttrReset} {
		if err := os.WriteFile(filepath.Join(w.dir, name), nil, 0o600); err != nil {
			return fmt.Errorf("create %s attribute: %w", name, err)
		}
	}
	return nil
}

// watchLoop processes fsnotify events, debouncing per attribute file so a
// writer that issues several writes produces one message.
func (w *Watcher) watchLoop(fsW *fsnotify.Watcher, cancel chan struct{}) {
	for {
		select {
		case <-cancel:
			return

		case event, ok := <-fsW.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			name := filepath.Base(event.Name)
			if name != AttrFifo && name != AttrReset {
				continue
			}
			w.schedule(name)

		case err, ok := <-fsW.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error for %s: %v", w.dir, err)
		}
	}
}

// schedule (re)arms the debounce timer for an attribute file.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[name]; ok {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(debounceInterval, func() {
		if err := w.Apply(name); err != nil {
			log.Printf("watcher: %s: %v", name, err)
		}
	})
}

// Apply consumes the current contents of an attribute file. An empty file
// is ignored. The file is renamed aside and replaced by an empty one before
// it is read, so writers that open the attribute afterwards land in the new
// file. A writer still holding the old file open can lose what it writes
// after the read.
func (w *Watcher) Apply(name string) error {
	if name != AttrFifo && name != AttrReset {
		return errors.New("unknown attribute")
	}
	path := filepath.Join(w.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	pending := path + pendingSuffix
	if err := os.Rename(path, pending); err != nil {
		return fmt.Errorf("move aside: %w", err)
	}
	defer os.Remove(pending)

	// A producer may already have recreated the attribute; keep its bytes.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	switch {
	case err == nil:
		f.Close()
	case !errors.Is(err, os.ErrExist):
		return fmt.Errorf("recreate: %w", err)
	}

	data, err := os.ReadFile(pending)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	switch name {
	case AttrFifo:
		n, err := w.target.Enqueue(data)
		if err != nil && !channel.IsWarning(err) {
			return fmt.Errorf("enqueue %d bytes: %w", len(data), err)
		}
		w.debugf("fifo: accepted %d of %d bytes", n, len(data))
	case AttrReset:
		w.target.Reset()
		w.debugf("reset")
	}
	return nil
}

// Shutdown stops watching. The control directory is left in place.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	fsW, cancel := w.fsWatcher, w.cancel
	w.fsWatcher, w.cancel = nil, nil
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()

	if fsW != nil {
		close(cancel)
		fsW.Close()
	}
}

func (w *Watcher) debugf(format string, args ...interface{}) {
	if w.debug {
		log.Printf("watcher: "+format, args...)
	}
}
