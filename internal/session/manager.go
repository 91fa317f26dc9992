// Package session manages a set of engine kernels, each one a repl.Session,
// and fans their results out to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cas-bridge/internal/dialect"
	"cas-bridge/internal/repl"
	"cas-bridge/internal/syntax"
)

const (
	defaultRingBufCapacity  = 1000
	defaultSubscriberBufCap = 100
)

var (
	// ErrNotFound is returned for unknown kernel ids.
	ErrNotFound = errors.New("kernel not found")
	// ErrMaxSessions is returned by Create when the live kernel limit is reached.
	ErrMaxSessions = errors.New("maximum kernel limit reached")
)

// Manager owns the lifecycle of engine kernels.
type Manager struct {
	mu          sync.RWMutex
	kernels     map[string]*managedKernel
	maxSessions int
	registry    *dialect.Registry
	opts        repl.Options
	log         *slog.Logger
}

type managedKernel struct {
	info        Kernel
	session     *repl.Session
	lastSeq     atomic.Int64
	history     *RingBuffer[Event]
	subscribers map[string]chan Event
	subMu       sync.RWMutex
}

// NewManager creates a manager that resolves dialects through registry and
// starts sessions with opts.
func NewManager(registry *dialect.Registry, maxSessions int, opts repl.Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		kernels:     make(map[string]*managedKernel),
		maxSessions: maxSessions,
		registry:    registry,
		opts:        opts,
		log:         log,
	}
}

// Dialects returns the profiles kernels can be created from.
func (m *Manager) Dialects() []*dialect.Profile {
	return m.registry.List()
}

// Create starts a kernel for the named dialect.
func (m *Manager) Create(dialectName, label string) (*Kernel, error) {
	p, err := m.registry.Lookup(dialectName)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, mk := range m.kernels {
		if mk.session.Status() != repl.StatusExited {
			active++
		}
	}
	if active >= m.maxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrMaxSessions, m.maxSessions)
	}

	id := uuid.New().String()
	opts := m.opts
	opts.Logger = m.log.With("kernel", id)
	sess, err := repl.Start(p, opts)
	if err != nil {
		return nil, err
	}

	mk := &managedKernel{
		info: Kernel{
			ID:        id,
			Dialect:   p.Name,
			Label:     label,
			CreatedAt: time.Now().UTC(),
		},
		session:     sess,
		history:     NewRingBuffer[Event](defaultRingBufCapacity),
		subscribers: make(map[string]chan Event),
	}
	m.kernels[id] = mk
	m.log.Info("kernel created", "kernel", id, "dialect", p.Name)

	go m.waitForExit(mk)

	k := mk.snapshot()
	return &k, nil
}

// advanceSeq raises lastSeq to seq. Auto-assigned numbers never reuse one
// an abandoned call may still be answered under.
func (mk *managedKernel) advanceSeq(seq int64) {
	for {
		cur := mk.lastSeq.Load()
		if seq <= cur || mk.lastSeq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (mk *managedKernel) snapshot() Kernel {
	k := mk.info
	k.State = mk.session.Status().String()
	return k
}

// waitForExit records the exit event once the engine is gone.
func (m *Manager) waitForExit(mk *managedKernel) {
	<-mk.session.Exited()
	code := mk.session.Wait()

	m.log.Info("kernel exited", "kernel", mk.info.ID, "exit_code", code)
	m.publish(mk, Event{
		KernelID:  mk.info.ID,
		Type:      EventExit,
		ExitCode:  code,
		Timestamp: time.Now().UTC(),
	})
}

// publish records an event and sends it to all subscribers.
func (m *Manager) publish(mk *managedKernel, event Event) {
	mk.subMu.RLock()
	defer mk.subMu.RUnlock()

	mk.history.Write(event)

	for _, ch := range mk.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber channel full, drop the event.
		}
	}
}

func (m *Manager) lookup(id string) (*managedKernel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mk, ok := m.kernels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return mk, nil
}

// Get returns a kernel by ID.
func (m *Manager) Get(id string) (*Kernel, error) {
	mk, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	k := mk.snapshot()
	return &k, nil
}

// List returns all kernels, oldest first.
func (m *Manager) List() []Kernel {
	m.mu.RLock()
	result := make([]Kernel, 0, len(m.kernels))
	for _, mk := range m.kernels {
		result = append(result, mk.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Execute runs code on a kernel and publishes the response. A seq of zero
// or less is replaced with the kernel's next sequence number.
func (m *Manager) Execute(ctx context.Context, id string, seq int, code string) (repl.Response, error) {
	mk, err := m.lookup(id)
	if err != nil {
		return repl.Response{}, err
	}
	if seq <= 0 {
		seq = int(mk.lastSeq.Add(1))
	} else {
		mk.advanceSeq(int64(seq))
	}

	r, err := mk.session.Execute(ctx, seq, code)
	if err != nil {
		return repl.Response{}, err
	}
	m.publish(mk, Event{
		KernelID:  id,
		Type:      EventResult,
		Seq:       r.Seq,
		OK:        r.OK,
		Segments:  r.Segments,
		Timestamp: time.Now().UTC(),
	})
	return r, nil
}

// IsComplete classifies code with the kernel's dialect.
func (m *Manager) IsComplete(id, code string) (syntax.Verdict, error) {
	mk, err := m.lookup(id)
	if err != nil {
		return syntax.Verdict{}, err
	}
	return mk.session.IsComplete(code), nil
}

// Classify classifies code with a dialect without a running kernel.
func (m *Manager) Classify(dialectName, code string) (syntax.Verdict, error) {
	p, err := m.registry.Lookup(dialectName)
	if err != nil {
		return syntax.Verdict{}, err
	}
	return p.Classifier.Classify(code), nil
}

// Kill terminates a kernel's engine. It returns before the engine is gone;
// subscribers see the exit event.
func (m *Manager) Kill(id string) error {
	mk, err := m.lookup(id)
	if err != nil {
		return err
	}
	go mk.session.Close()
	return nil
}

// Subscribe creates a channel that receives events for a kernel. It returns
// the subscription ID and the buffered history.
func (m *Manager) Subscribe(id string) (string, <-chan Event, []Event, error) {
	mk, err := m.lookup(id)
	if err != nil {
		return "", nil, nil, err
	}

	subID := uuid.New().String()
	ch := make(chan Event, defaultSubscriberBufCap)

	mk.subMu.Lock()
	history := mk.history.ReadAll()
	mk.subscribers[subID] = ch
	mk.subMu.Unlock()

	return subID, ch, history, nil
}

// Unsubscribe removes a subscriber from a kernel.
func (m *Manager) Unsubscribe(kernelID, subID string) {
	mk, err := m.lookup(kernelID)
	if err != nil {
		return
	}

	mk.subMu.Lock()
	if ch, exists := mk.subscribers[subID]; exists {
		close(ch)
		delete(mk.subscribers, subID)
	}
	mk.subMu.Unlock()
}

// Shutdown closes every kernel and waits for their engines to stop.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	sessions := make([]*repl.Session, 0, len(m.kernels))
	for _, mk := range m.kernels {
		sessions = append(sessions, mk.session)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *repl.Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
