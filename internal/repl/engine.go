package repl

import (
	"errors"
	"fmt"
	"io"

	"cas-bridge/internal/syntax"
)

var (
	// errQuit stops the loop when the session is closed while idle.
	errQuit = errors.New("session closing")
	// errIdleExit stops the loop when the engine dies between cells.
	errIdleExit = errors.New("engine exited while idle")
)

// cycle is the state of one feed/read round trip.
type cycle struct {
	seq     int
	scratch *scratchFile
}

// run is the engine loop. It owns the child's stdin and output exclusively.
func (s *Session) run() {
	defer close(s.loopDone)

	if err := s.initialize(); err != nil {
		s.terminated(err)
		s.drain()
		return
	}

	for {
		s.status.store(StatusAwaitingInput)
		c, err := s.feed()
		if errors.Is(err, errQuit) {
			s.terminated(err)
			return
		}
		if errors.Is(err, errIdleExit) {
			s.terminated(err)
			break
		}
		if err != nil {
			s.emit(failure(c.seq, fmt.Sprintf("%v: %v", ErrSessionTerminated, err)))
			s.terminated(err)
			break
		}

		s.status.store(StatusReadingOutput)
		if err := s.read(c); err != nil {
			s.emit(failure(c.seq, fmt.Sprintf("%v: %v", ErrSessionTerminated, err)))
			s.terminated(err)
			break
		}
	}
	s.drain()
}

// initialize sends the profile's initial text and consumes the prompt the
// engine prints once it is ready.
func (s *Session) initialize() error {
	if s.profile.InitialText != "" {
		if err := s.child.stdin.WriteString(s.profile.InitialText); err != nil {
			return fmt.Errorf("write initial text: %w", err)
		}
	}
	banner, err := s.framer.ReadResponse()
	if err != nil {
		return endOfStream(err)
	}
	s.log.Debug("engine ready", "banner", banner)
	return nil
}

// feed takes submissions until one classifies as complete and writes its
// command to the engine. Rejected submissions are answered directly and
// never reach the engine.
func (s *Session) feed() (cycle, error) {
	for {
		var sub Submission
		select {
		case <-s.quit:
			return cycle{}, errQuit
		case <-s.child.done:
			return cycle{}, errIdleExit
		case sub = <-s.in:
		}

		v := s.profile.Classifier.Classify(sub.Code)
		if v.Status != syntax.Complete {
			msg := v.Message
			if msg == "" {
				msg = string(v.Status)
			}
			s.log.Debug("submission rejected", "seq", sub.Seq, "status", v.Status, "reason", msg)
			s.emit(failure(sub.Seq, fmt.Sprintf("%s: %s", v.Status, msg)))
			continue
		}

		c := cycle{seq: sub.Seq}
		if s.profile.UseScratch {
			f, err := createScratch(s.opts.ScratchDir, sub.Seq, s.profile.ScratchExt, v.Code)
			if err != nil {
				s.log.Error("scratch file", "seq", sub.Seq, "error", err)
				s.emit(failure(sub.Seq, err.Error()))
				continue
			}
			c.scratch = f
		}

		cmd := s.profile.Format(sub.Seq, v, c.scratch.Path())
		if err := s.child.stdin.WriteString(cmd); err != nil {
			c.scratch.release(s.log)
			s.log.Error("write to engine", "seq", sub.Seq, "error", err)
			return c, fmt.Errorf("write command: %w", err)
		}
		s.log.Debug("command sent", "seq", sub.Seq, "bytes", len(cmd))
		return c, nil
	}
}

// read frames one response and emits it. The cycle's scratch file is
// released on every path, before the response becomes visible.
func (s *Session) read(c cycle) error {
	segments, err := s.framer.ReadResponse()
	c.scratch.release(s.log)
	if err != nil {
		return endOfStream(err)
	}
	if s.profile.Filter != nil && len(segments) > 0 {
		segments[0] = s.profile.Filter(c.seq, segments[0], c.scratch.Path())
	}
	s.emit(Response{Seq: c.seq, OK: true, Segments: segments})
	return nil
}

// terminated records that the engine is gone.
func (s *Session) terminated(err error) {
	select {
	case <-s.quit:
		s.log.Debug("engine loop stopped", "reason", err)
	default:
		s.log.Warn("engine output closed", "reason", err)
	}
	s.status.store(StatusExited)
	close(s.exited)
}

// drain answers every later submission with a terminated diagnostic until
// the session is closed.
func (s *Session) drain() {
	for {
		select {
		case <-s.quit:
			return
		case sub := <-s.in:
			s.emit(failure(sub.Seq, ErrSessionTerminated.Error()))
		}
	}
}

// emit pushes r to the output queue unless the session is closing.
func (s *Session) emit(r Response) {
	select {
	case s.out <- r:
	case <-s.quit:
	}
}

func endOfStream(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.New("engine output closed")
	}
	return err
}
