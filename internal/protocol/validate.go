package protocol

import (
	"encoding/json"
	"fmt"
)

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeKernelCreate:     true,
	TypeKernelExecute:    true,
	TypeKernelIsComplete: true,
	TypeKernelKill:       true,
	TypeKernelStatus:     true,
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
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
	case TypeKernelCreate:
		var p KernelCreatePayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		if p.Dialect == "" {
			return nil, missing(msg.Type, "dialect")
		}

	case TypeKernelExecute:
		var p KernelExecutePayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		if p.KernelID == "" {
			return nil, missing(msg.Type, "kernelId")
		}
		if p.Seq < 0 {
			return nil, fmt.Errorf("field 'seq' must not be negative in %s payload", msg.Type)
		}

	case TypeKernelIsComplete:
		var p KernelIsCompletePayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		if p.KernelID == "" && p.Dialect == "" {
			return nil, fmt.Errorf("one of 'kernelId' or 'dialect' is required in %s payload", msg.Type)
		}

	case TypeKernelKill, TypeKernelStatus:
		var p KernelIDPayload
		if err := decode(msg, &p); err != nil {
			return nil, err
		}
		if p.KernelID == "" {
			return nil, missing(msg.Type, "kernelId")
		}
	}

	return &msg, nil
}

func decode(msg Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
	}
	return nil
}

func missing(msgType, field string) error {
	return fmt.Errorf("missing required field '%s' in %s payload", field, msgType)
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
