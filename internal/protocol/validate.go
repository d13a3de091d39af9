package protocol

import (
	"fmt"

	"parrot/internal/session"

	"github.com/sugawarayuuta/sonnet"
)

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeDeviceOpen:  true,
	TypeDeviceRead:  true,
	TypeDeviceClose: true,
	TypeDeviceWrite: true,
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := sonnet.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	switch msg.Type {
	case TypeDeviceOpen:
		var p DeviceOpenPayload
		if err := DecodePayload(&msg, &p); err != nil {
			return nil, err
		}
		if p.Mode == "" {
			return nil, fmt.Errorf("missing required field 'mode' in %s payload", msg.Type)
		}
		if !session.Mode(p.Mode).Valid() {
			return nil, fmt.Errorf("unknown access mode %q in %s payload", p.Mode, msg.Type)
		}

	case TypeDeviceRead:
		var p DeviceReadPayload
		if err := DecodePayload(&msg, &p); err != nil {
			return nil, err
		}
		if p.MaxLen < 0 {
			return nil, fmt.Errorf("'maxLen' must not be negative in %s payload", msg.Type)
		}

	case TypeDeviceClose:
		var p DeviceClosePayload
		if err := DecodePayload(&msg, &p); err != nil {
			return nil, err
		}

	case TypeDeviceWrite:
		var p DeviceWritePayload
		if err := DecodePayload(&msg, &p); err != nil {
			return nil, err
		}
	}

	return &msg, nil
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
