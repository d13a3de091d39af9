package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source is the consumer side of a framed channel.
type Source interface {
	Dequeue(maxLen int) ([]byte, error)
}

// Options configures a Session. It is copied at construction.
type Options struct {
	// OneShot limits every acquisition to a single delivered message.
	OneShot bool
	Debug   bool
}

// Session is a single-holder gate around the consumer side of a channel.
// Acquire never waits: a second opener is rejected with ErrAlreadyHeld.
type Session struct {
	mu         sync.Mutex
	src        Source
	oneShot    bool
	debug      bool
	held       bool
	delivered  bool
	id         string
	acquiredAt time.Time
}

// New creates a free session reading from src.
func New(src Source, opts Options) *Session {
	return &Session{
		src:     src,
		oneShot: opts.OneShot,
		debug:   opts.Debug,
	}
}

// Open checks the requested access mode and acquires the session.
// Write access is refused with ErrPermissionDenied before the lock is
// consulted.
func (s *Session) Open(mode Mode) error {
	s.debugf("open mode=%s", mode)
	if mode.Writable() {
		log.Printf("session: write access is prohibited")
		return ErrPermissionDenied
	}
	return s.Acquire()
}

// Acquire takes the session if it is free and clears the delivered flag.
func (s *Session) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		log.Printf("session: another consumer is accessing the channel")
		return ErrAlreadyHeld
	}

	s.held = true
	s.delivered = false
	s.id = uuid.New().String()
	s.acquiredAt = time.Now().UTC()
	s.debugf("acquired %s", s.id)
	return nil
}

// Release frees the session. Releasing a free session is a no-op.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		s.debugf("released %s", s.id)
	}
	s.held = false
	s.id = ""
	s.acquiredAt = time.Time{}
}

// ReadOne returns the next message, or nil when there is none. In one-shot
// mode every read after the first delivered message returns nil without
// touching the channel until the session is released and acquired again.
// A short read is returned together with the channel's warning error.
func (s *Session) ReadOne(maxLen int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.held {
		return nil, ErrNotHeld
	}
	if s.oneShot && s.delivered {
		return nil, nil
	}

	data, err := s.src.Dequeue(maxLen)
	if len(data) > 0 {
		s.delivered = true
	}
	return data, err
}

// Write always fails: the consumer session is read-only.
func (s *Session) Write(p []byte) (int, error) {
	log.Printf("session: write access is prohibited")
	return 0, ErrPermissionDenied
}

// Held reports whether the session is currently held.
func (s *Session) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:        s.id,
		State:     StateFree,
		Delivered: s.held && s.delivered,
		OneShot:   s.oneShot,
	}
	if s.held {
		info.State = StateHeld
		at := s.acquiredAt
		info.AcquiredAt = &at
	}
	return info
}

func (s *Session) debugf(format string, args ...interface{}) {
	if s.debug {
		log.Printf("session: "+format, args...)
	}
}
