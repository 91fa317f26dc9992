// Package protocol defines the JSON messages exchanged with websocket
// clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeKernelUpdate     = "kernel.update"
	TypeKernelResult     = "kernel.result"
	TypeKernelVerdict    = "kernel.verdict"
	TypeKernelTerminated = "kernel.terminated"
	TypeDialectsUpdate   = "dialects.update"
	TypeError            = "error"
)

// Client → Server message types.
const (
	TypeKernelCreate     = "kernel.create"
	TypeKernelExecute    = "kernel.execute"
	TypeKernelIsComplete = "kernel.isComplete"
	TypeKernelKill       = "kernel.kill"
	TypeKernelStatus     = "kernel.status"
)

// Error codes.
const (
	ErrKernelNotFound   = "KERNEL_NOT_FOUND"
	ErrKernelTerminated = "KERNEL_TERMINATED"
	ErrInvalidMessage   = "INVALID_MESSAGE"
	ErrMaxSessions      = "MAX_SESSIONS"
	ErrSpawnFailed      = "SPAWN_FAILED"
	ErrUnknownDialect   = "UNKNOWN_DIALECT"
	ErrInternal         = "INTERNAL"
)

// Server → Client payloads.

type KernelUpdatePayload struct {
	ID        string `json:"id"`
	Dialect   string `json:"dialect"`
	State     string `json:"state"`
	Label     string `json:"label"`
	CreatedAt string `json:"createdAt"`
}

type KernelResultPayload struct {
	KernelID string        `json:"kernelId"`
	Seq      int           `json:"seq"`
	OK       bool          `json:"ok"`
	Segments []string      `json:"segments"`
	Display  []DisplayItem `json:"display,omitempty"`
}

// DisplayItem is one MIME bundle of a result.
type DisplayItem struct {
	Data   map[string]any `json:"data"`
	Result bool           `json:"result,omitempty"`
}

type KernelVerdictPayload struct {
	KernelID   string   `json:"kernelId,omitempty"`
	Dialect    string   `json:"dialect,omitempty"`
	Status     string   `json:"status"`
	Code       string   `json:"code,omitempty"`
	Statements []string `json:"statements,omitempty"`
	Message    string   `json:"message,omitempty"`
}

type KernelTerminatedPayload struct {
	KernelID string `json:"kernelId"`
	ExitCode int    `json:"exitCode"`
}

type DialectsUpdatePayload struct {
	Dialects []DialectInfo `json:"dialects"`
}

// DialectInfo describes one engine kernels can be created for.
type DialectInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Command     string `json:"command"`
	Scratch     bool   `json:"scratch"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type KernelCreatePayload struct {
	Dialect string `json:"dialect"`
	Label   string `json:"label"`
}

type KernelExecutePayload struct {
	KernelID string `json:"kernelId"`
	Seq      int    `json:"seq,omitempty"`
	Code     string `json:"code"`
}

// KernelIsCompletePayload names either a running kernel or a dialect.
type KernelIsCompletePayload struct {
	KernelID string `json:"kernelId,omitempty"`
	Dialect  string `json:"dialect,omitempty"`
	Code     string `json:"code"`
}

type KernelIDPayload struct {
	KernelID string `json:"kernelId"`
}
