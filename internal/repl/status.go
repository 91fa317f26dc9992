package repl

import "sync/atomic"

// Status is the observable state of a session's engine loop. It is written
// only by the loop and is never used for control flow.
type Status int32

const (
	StatusInitializing Status = iota
	StatusAwaitingInput
	StatusReadingOutput
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAwaitingInput:
		return "awaiting-input"
	case StatusReadingOutput:
		return "reading-output"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// statusRegister is a single-writer, multi-reader status cell.
type statusRegister struct {
	v atomic.Int32
}

func (r *statusRegister) load() Status {
	return Status(r.v.Load())
}

func (r *statusRegister) store(s Status) {
	r.v.Store(int32(s))
}
