package client

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"parrot/internal/channel"
	"parrot/internal/realtime"
	"parrot/internal/session"

	"code.hybscloud.com/iox"
	"github.com/sugawarayuuta/sonnet"
)

func newTestServer(t *testing.T, oneShot bool) (*httptest.Server, *channel.Channel, *session.Session) {
	t.Helper()
	ch, err := channel.New(channel.Config{RingSize: 32, MaxMessages: 4})
	if err != nil {
		t.Fatalf("channel.New failed: %v", err)
	}
	sess := session.New(ch, session.Options{OneShot: oneShot})
	srv := httptest.NewServer(realtime.New(ch, sess, false).Handler())
	t.Cleanup(srv.Close)
	return srv, ch, sess
}

func TestClient_PushAndCat(t *testing.T) {
	srv, _, _ := newTestServer(t, false)
	c := New(srv.URL)
	ctx := context.Background()

	for _, m := range []string{"alpha", "beta"} {
		res, err := c.Push(ctx, []byte(m), 0)
		if err != nil {
			t.Fatalf("push %q: %v", m, err)
		}
		if res.Accepted != len(m) || res.Short || res.Attempts != 1 {
			t.Errorf("push %q: unexpected result %+v", m, res)
		}
	}

	var out bytes.Buffer
	n, err := c.Cat(ctx, &out, 0)
	if err != nil {
		t.Fatalf("Cat failed: %v", err)
	}
	if n != 2 || out.String() != "alphabeta" {
		t.Errorf("expected 2 messages alphabeta, got %d %q", n, out.String())
	}
}

func TestClient_CatOneShot(t *testing.T) {
	srv, ch, _ := newTestServer(t, true)
	ch.Enqueue([]byte("alpha"))
	ch.Enqueue([]byte("beta"))
	c := New(srv.URL)

	var out bytes.Buffer
	if n, err := c.Cat(context.Background(), &out, 0); err != nil || n != 1 {
		t.Fatalf("expected one message, got %d, %v", n, err)
	}
	if out.String() != "alpha" {
		t.Errorf("expected alpha, got %q", out.String())
	}

	out.Reset()
	c.Cat(context.Background(), &out, 0)
	if out.String() != "beta" {
		t.Errorf("expected beta on second open, got %q", out.String())
	}
}

func TestClient_PushFullRetriesThenFails(t *testing.T) {
	srv, ch, _ := newTestServer(t, true)
	ch.Enqueue([]byte(strings.Repeat("x", 30)))
	c := New(srv.URL)

	res, err := c.Push(context.Background(), []byte("too much"), 2)
	if !errors.Is(err, channel.ErrInsufficientSpace) {
		t.Fatalf("expected ErrInsufficientSpace, got %v", err)
	}
	if !errors.Is(err, iox.ErrWouldBlock) {
		t.Error("expected error to be retryable")
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestClient_CatBusy(t *testing.T) {
	srv, _, sess := newTestServer(t, true)
	if err := sess.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer sess.Release()

	_, err := New(srv.URL).Cat(context.Background(), &bytes.Buffer{}, 0)
	if !errors.Is(err, session.ErrAlreadyHeld) {
		t.Errorf("expected ErrAlreadyHeld, got %v", err)
	}
}

func TestClient_ResetAndStatus(t *testing.T) {
	srv, ch, _ := newTestServer(t, true)
	ch.Enqueue([]byte("alpha"))
	c := New(srv.URL)
	ctx := context.Background()

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !ch.IsEmpty() {
		t.Error("expected channel to be empty after reset")
	}

	body, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	var status struct {
		Channel channel.Stats `json:"channel"`
		Session session.Info  `json:"session"`
	}
	if err := sonnet.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Channel.Pending != 0 || status.Channel.Capacity != 32 || status.Session.State != session.StateFree {
		t.Errorf("unexpected status: %s", body)
	}
}

func TestClient_WSURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8420", "ws://localhost:8420/ws"},
		{"https://example.com/parrot/", "wss://example.com/parrot/ws"},
	}
	for _, tt := range tests {
		got, err := New(tt.base).wsURL()
		if err != nil {
			t.Fatalf("wsURL(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
