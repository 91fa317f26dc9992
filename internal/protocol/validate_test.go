package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func clientMessage(t *testing.T, msgType string, payload map[string]any) []byte {
	t.Helper()
	msg := map[string]any{
		"type":      msgType,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNewMessage(t *testing.T) {
	payload := KernelUpdatePayload{
		ID:      "test-id",
		Dialect: "gap",
		State:   "awaiting-input",
	}

	msg, err := NewMessage(TypeKernelUpdate, payload)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if msg.Type != TypeKernelUpdate {
		t.Errorf("expected type %s, got %s", TypeKernelUpdate, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	var p KernelUpdatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.ID != "test-id" || p.Dialect != "gap" {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestValidateClientMessage_Valid(t *testing.T) {
	tests := []struct {
		msgType string
		payload map[string]any
	}{
		{TypeKernelCreate, map[string]any{"dialect": "gap", "label": "groups"}},
		{TypeKernelExecute, map[string]any{"kernelId": "abc", "code": "1+1;"}},
		{TypeKernelExecute, map[string]any{"kernelId": "abc", "seq": 3, "code": ""}},
		{TypeKernelIsComplete, map[string]any{"kernelId": "abc", "code": "if true then"}},
		{TypeKernelIsComplete, map[string]any{"dialect": "singular", "code": "f(x"}},
		{TypeKernelKill, map[string]any{"kernelId": "abc"}},
		{TypeKernelStatus, map[string]any{"kernelId": "abc"}},
	}

	for _, tt := range tests {
		result, err := ValidateClientMessage(clientMessage(t, tt.msgType, tt.payload))
		if err != nil {
			t.Errorf("%s %v: expected valid message, got error: %v", tt.msgType, tt.payload, err)
			continue
		}
		if result.Type != tt.msgType {
			t.Errorf("expected type %s, got %s", tt.msgType, result.Type)
		}
	}
}

func TestValidateClientMessage_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		payload map[string]any
	}{
		{"missing type", "", map[string]any{}},
		{"unknown type", "unknown.action", map[string]any{}},
		{"missing payload", TypeKernelCreate, nil},
		{"missing dialect", TypeKernelCreate, map[string]any{"label": "test"}},
		{"missing kernelId", TypeKernelExecute, map[string]any{"code": "1;"}},
		{"negative seq", TypeKernelExecute, map[string]any{"kernelId": "abc", "seq": -1, "code": "1;"}},
		{"wrong field type", TypeKernelExecute, map[string]any{"kernelId": "abc", "code": 7}},
		{"no kernel or dialect", TypeKernelIsComplete, map[string]any{"code": "1;"}},
		{"kill without id", TypeKernelKill, map[string]any{}},
		{"status without id", TypeKernelStatus, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateClientMessage(clientMessage(t, tt.msgType, tt.payload)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateClientMessage_InvalidJSON(t *testing.T) {
	if _, err := ValidateClientMessage([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(ErrKernelNotFound, "kernel xyz not found")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, msg.Type)
	}

	var p ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Code != ErrKernelNotFound {
		t.Errorf("expected code %s, got %s", ErrKernelNotFound, p.Code)
	}
}
