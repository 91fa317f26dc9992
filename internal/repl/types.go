// Package repl drives one mathematics engine as a child process. A dedicated
// goroutine feeds it one submission at a time and frames its output into
// responses; Session.Execute is the synchronous front of that loop.
package repl

import (
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrSessionTerminated is the diagnostic for submissions that reach a
	// session whose engine has exited.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrSessionClosed is returned by Execute once Close has been called.
	ErrSessionClosed = errors.New("session closed")
	// ErrSpawn wraps failures to start the engine process.
	ErrSpawn = errors.New("spawn engine")
)

const (
	defaultQueueSize   = 16
	defaultGracePeriod = 5 * time.Second
)

// Submission is one unit of code to run. Seq is chosen by the caller and
// must increase within a session.
type Submission struct {
	Seq  int
	Code string
}

// Response is the result of one submission. When OK is false, Segments holds
// a single diagnostic.
type Response struct {
	Seq      int      `json:"seq"`
	OK       bool     `json:"ok"`
	Segments []string `json:"segments"`
}

// Diagnostic returns the failure message of a failed response.
func (r Response) Diagnostic() string {
	if r.OK || len(r.Segments) == 0 {
		return ""
	}
	return r.Segments[0]
}

func failure(seq int, msg string) Response {
	return Response{Seq: seq, OK: false, Segments: []string{msg}}
}

// Options configures a session.
type Options struct {
	// Dir is the engine's working directory. Empty means the bridge's own.
	Dir string
	// ScratchDir holds scratch files. Empty means os.TempDir().
	ScratchDir string
	// QueueSize bounds the input and output queues.
	QueueSize int
	// GracePeriod is how long Close waits after interrupting the engine
	// before killing it.
	GracePeriod time.Duration
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = defaultGracePeriod
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
