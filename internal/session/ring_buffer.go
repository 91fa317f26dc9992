package session

import "sync"

// RingBuffer is a fixed-capacity circular buffer. Kernels use it to keep
// recent transcript events for late subscribers.
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	buf      []T
	capacity int
	pos      int // next write position
	full     bool
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	return &RingBuffer[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Write adds an item, overwriting the oldest one when full.
func (rb *RingBuffer[T]) Write(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = item
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// ReadAll returns all items in the order they were written.
func (rb *RingBuffer[T]) ReadAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		result := make([]T, rb.pos)
		copy(result, rb.buf[:rb.pos])
		return result
	}

	result := make([]T, rb.capacity)
	copy(result, rb.buf[rb.pos:])
	copy(result[rb.capacity-rb.pos:], rb.buf[:rb.pos])
	return result
}
