package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := sonnet.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Encode marshals a message for the wire.
func Encode(msg *Message) ([]byte, error) {
	return sonnet.Marshal(msg)
}

// DecodePayload unmarshals the payload of msg into v.
func DecodePayload(msg *Message, v interface{}) error {
	if err := sonnet.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	return nil
}

// Server → Client message types.
const (
	TypeDeviceOpened = "device.opened"
	TypeDeviceData   = "device.data"
	TypeDeviceClosed = "device.closed"
	TypeError        = "error"
)

// Client → Server message types.
const (
	TypeDeviceOpen  = "device.open"
	TypeDeviceRead  = "device.read"
	TypeDeviceClose = "device.close"
	TypeDeviceWrite = "device.write"
)

// Error codes.
const (
	ErrBusy              = "BUSY"
	ErrPermissionDenied  = "PERMISSION_DENIED"
	ErrNotOpen           = "NOT_OPEN"
	ErrInvalidMessage    = "INVALID_MESSAGE"
	ErrInsufficientSpace = "INSUFFICIENT_SPACE"
)

// Server → Client payloads.

type DeviceOpenedPayload struct {
	SessionID string `json:"sessionId"`
	OneShot   bool   `json:"oneShot"`
}

// DeviceDataPayload carries one read. A zero Length means no message was
// available or the one-shot limit was reached.
type DeviceDataPayload struct {
	Data   []byte `json:"data"`
	Length int    `json:"length"`
	Short  bool   `json:"short,omitempty"`
}

type DeviceClosedPayload struct {
	SessionID string `json:"sessionId,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type DeviceOpenPayload struct {
	Mode string `json:"mode"`
}

// DeviceReadPayload asks for the next message. MaxLen of zero means the
// ring capacity.
type DeviceReadPayload struct {
	MaxLen int `json:"maxLen"`
}

type DeviceClosePayload struct{}

// DeviceWritePayload is accepted on the wire only so the write can be
// refused with PERMISSION_DENIED.
type DeviceWritePayload struct {
	Data []byte `json:"data"`
}
