package repl

import (
	"context"
	"log/slog"
	"sync"

	"cas-bridge/internal/dialect"
	"cas-bridge/internal/framer"
	"cas-bridge/internal/syntax"
)

// Session owns one engine process and the goroutine that talks to it.
// Callers interact with it only through Execute, IsComplete and Status.
type Session struct {
	profile *dialect.Profile
	opts    Options
	log     *slog.Logger

	child  *child
	framer *framer.Framer
	in     chan Submission
	out    chan Response
	status statusRegister

	// flight is a one-slot semaphore serializing Execute: at most one call
	// is outstanding.
	flight chan struct{}

	exited    chan struct{}
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// Start spawns the engine described by p and starts the session's loop.
func Start(p *dialect.Profile, opts Options) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	c, err := spawn(p, opts.Dir)
	if err != nil {
		return nil, err
	}

	s := &Session{
		profile:  p,
		opts:     opts,
		log:      opts.Logger.With("dialect", p.Name, "pid", c.cmd.Process.Pid),
		child:    c,
		framer:   framer.New(c.output, p.Prompt, p.Separator),
		in:       make(chan Submission, opts.QueueSize),
		out:      make(chan Response, opts.QueueSize),
		flight:   make(chan struct{}, 1),
		exited:   make(chan struct{}),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	s.status.store(StatusInitializing)
	s.log.Info("engine started", "command", p.Command)

	go s.run()
	return s, nil
}

// Execute submits code under seq and blocks until the response carrying seq
// arrives. Responses for other sequence numbers, left behind by abandoned
// calls, are discarded. Classifier rejections and engine exit are reported
// as failed responses, not errors; the error is non-nil only when ctx is
// done or the session was closed.
func (s *Session) Execute(ctx context.Context, seq int, code string) (Response, error) {
	select {
	case s.flight <- struct{}{}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-s.quit:
		return Response{}, ErrSessionClosed
	}
	defer func() { <-s.flight }()

	select {
	case s.in <- Submission{Seq: seq, Code: code}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-s.quit:
		return Response{}, ErrSessionClosed
	}

	for {
		select {
		case r := <-s.out:
			if r.Seq != seq {
				s.log.Debug("discarding stale response", "seq", r.Seq, "want", seq)
				continue
			}
			return r, nil
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-s.quit:
			return Response{}, ErrSessionClosed
		}
	}
}

// IsComplete classifies code without involving the engine.
func (s *Session) IsComplete(code string) syntax.Verdict {
	return s.profile.Classifier.Classify(code)
}

// Status returns the loop's current state.
func (s *Session) Status() Status {
	return s.status.load()
}

// Profile returns the profile the session was started with.
func (s *Session) Profile() *dialect.Profile {
	return s.profile
}

// Exited is closed when the engine's output stream ends.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// ExitCode returns the engine's exit code once the process has been reaped,
// and false before that.
func (s *Session) ExitCode() (int, bool) {
	select {
	case <-s.child.done:
		return s.child.exitCode, true
	default:
		return 0, false
	}
}

// Wait blocks until the engine process has been reaped and returns its exit
// code.
func (s *Session) Wait() int {
	<-s.child.done
	return s.child.exitCode
}

// Close stops the loop and terminates the engine. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.child.terminate(s.opts.GracePeriod)
		<-s.loopDone
		s.log.Info("engine stopped", "exit_code", s.child.exitCode)
	})
	return nil
}
