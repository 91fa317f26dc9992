package session

import "time"

// Kernel is the externally visible metadata of one managed engine session.
type Kernel struct {
	ID        string    `json:"id"`
	Dialect   string    `json:"dialect"`
	Label     string    `json:"label"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventType distinguishes cell results from engine exit.
type EventType string

const (
	EventResult EventType = "result"
	EventExit   EventType = "exit"
)

// Event is one entry in a kernel's transcript.
type Event struct {
	KernelID  string    `json:"kernelId"`
	Type      EventType `json:"type"`
	Seq       int       `json:"seq,omitempty"`
	OK        bool      `json:"ok"`
	Segments  []string  `json:"segments,omitempty"`
	ExitCode  int       `json:"exitCode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
