// Package client talks to a parrot server: it pushes messages through the
// producer endpoint and drains them through the WebSocket consumer.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parrot/internal/channel"
	"parrot/internal/protocol"
	"parrot/internal/session"

	"code.hybscloud.com/iox"
	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

const readTimeout = 10 * time.Second

// Client is a parrot server client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (for example
// http://localhost:8420).
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: readTimeout},
	}
}

// PushResult reports how a pushed message was accepted.
type PushResult struct {
	Accepted int  `json:"accepted"`
	Short    bool `json:"short"`
	Attempts int  `json:"-"`
}

// Push enqueues data as one message. When the channel is full it retries
// up to retries more times with adaptive backoff before returning
// channel.ErrInsufficientSpace.
func (c *Client) Push(ctx context.Context, data []byte, retries int) (PushResult, error) {
	var bo iox.Backoff
	for attempt := 1; ; attempt++ {
		res, err := c.pushOnce(ctx, data)
		res.Attempts = attempt
		if !errors.Is(err, channel.ErrInsufficientSpace) || attempt > retries {
			return res, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		bo.Wait()
	}
}

func (c *Client) pushOnce(ctx context.Context, data []byte) (PushResult, error) {
	var res PushResult
	body, status, err := c.post(ctx, "/fifo", data)
	if err != nil {
		return res, err
	}
	if status != http.StatusOK {
		return res, decodeError(body, status)
	}
	if err := sonnet.Unmarshal(body, &res); err != nil {
		return res, fmt.Errorf("decode push response: %w", err)
	}
	return res, nil
}

// Reset empties the server's channel.
func (c *Client) Reset(ctx context.Context) error {
	body, status, err := c.post(ctx, "/reset", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return decodeError(body, status)
	}
	return nil
}

// Status returns the raw status document of the server.
func (c *Client) Status(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(body, resp.StatusCode)
	}
	return body, nil
}

// Cat opens the consumer session, writes every message it can read to w
// until a read returns nothing, and closes the session. It returns the
// number of messages read. maxLen of zero lets the server pick.
func (c *Client) Cat(ctx context.Context, w io.Writer, maxLen int) (int, error) {
	wsURL, err := c.wsURL()
	if err != nil {
		return 0, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return 0, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	if _, err := call(conn, protocol.TypeDeviceOpen, protocol.DeviceOpenPayload{Mode: string(session.ModeRead)}, protocol.TypeDeviceOpened); err != nil {
		return 0, err
	}

	count := 0
	for {
		resp, err := call(conn, protocol.TypeDeviceRead, protocol.DeviceReadPayload{MaxLen: maxLen}, protocol.TypeDeviceData)
		if err != nil {
			return count, err
		}
		var p protocol.DeviceDataPayload
		if err := protocol.DecodePayload(resp, &p); err != nil {
			return count, err
		}
		if p.Length == 0 {
			break
		}
		count++
		if _, err := w.Write(p.Data); err != nil {
			return count, err
		}
	}

	_, err = call(conn, protocol.TypeDeviceClose, protocol.DeviceClosePayload{}, protocol.TypeDeviceClosed)
	return count, err
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (c *Client) post(ctx context.Context, path string, data []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s response: %w", path, err)
	}
	return body, resp.StatusCode, nil
}

// call sends one request over the consumer connection and waits for a
// reply of the wanted type.
func call(conn *websocket.Conn, msgType string, payload interface{}, want string) (*protocol.Message, error) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read reply to %s: %w", msgType, err)
	}
	var resp protocol.Message
	if err := sonnet.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode reply to %s: %w", msgType, err)
	}

	if resp.Type == protocol.TypeError {
		var p protocol.ErrorPayload
		protocol.DecodePayload(&resp, &p)
		return nil, remoteError(p.Code, p.Message)
	}
	if resp.Type != want {
		return nil, fmt.Errorf("unexpected reply to %s: %s", msgType, resp.Type)
	}
	return &resp, nil
}

func decodeError(body []byte, status int) error {
	var p protocol.ErrorPayload
	if err := sonnet.Unmarshal(body, &p); err != nil || p.Code == "" {
		return fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(body)))
	}
	return remoteError(p.Code, p.Message)
}

// remoteError maps a server error code back onto the local sentinel so
// callers can use errors.Is.
func remoteError(code, message string) error {
	switch code {
	case protocol.ErrInsufficientSpace:
		return channel.ErrInsufficientSpace
	case protocol.ErrBusy:
		return session.ErrAlreadyHeld
	case protocol.ErrPermissionDenied:
		return session.ErrPermissionDenied
	case protocol.ErrNotOpen:
		return fmt.Errorf("%w: %s", session.ErrNotHeld, message)
	}
	return fmt.Errorf("%s: %s", code, message)
}
