// Package queue provides a thread-safe ring buffer of raw events
// awaiting pipeline processing on the asynchronous ingestion path.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"soc-triage/internal/schema"
)

var (
	// ErrQueueFull is returned when attempting to push to a full queue.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueEmpty is returned when attempting to pop from an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrQueueClosed is returned when attempting to use a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// Envelope wraps a raw event accepted for asynchronous processing.
type Envelope struct {
	ID         uuid.UUID
	Raw        schema.RawEvent
	ReceivedAt time.Time
}

// NewEnvelope wraps a raw event with an ID and receive time.
func NewEnvelope(raw schema.RawEvent) *Envelope {
	return &Envelope{
		ID:         uuid.New(),
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
	}
}

// RingBuffer is a thread-safe circular buffer of envelopes.
type RingBuffer struct {
	buffer []*Envelope
	size   int
	head   int
	tail   int
	count  int
	closed bool
	mu     sync.Mutex
	cond   *sync.Cond

	// Metrics (accessed atomically)
	totalPushed  uint64
	totalPopped  uint64
	totalDropped uint64
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 10000
	}

	rb := &RingBuffer{
		buffer: make([]*Envelope, size),
		size:   size,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Push adds an envelope to the queue.
// Returns ErrQueueFull if the queue is at capacity.
func (rb *RingBuffer) Push(env *Envelope) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return ErrQueueClosed
	}

	if rb.count == rb.size {
		atomic.AddUint64(&rb.totalDropped, 1)
		return ErrQueueFull
	}

	rb.buffer[rb.tail] = env
	rb.tail = (rb.tail + 1) % rb.size
	rb.count++
	atomic.AddUint64(&rb.totalPushed, 1)

	rb.cond.Signal()
	return nil
}

// Pop removes and returns an envelope from the queue.
// Returns ErrQueueEmpty if the queue is empty.
func (rb *RingBuffer) Pop() (*Envelope, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		if rb.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}
	return rb.popLocked(), nil
}

// PopWithTimeout removes and returns an envelope, waiting up to timeout
// for one to arrive. Returns ErrQueueEmpty on timeout, ErrQueueClosed
// once the queue is closed and drained.
func (rb *RingBuffer) PopWithTimeout(timeout time.Duration) (*Envelope, error) {
	deadline := time.Now().Add(timeout)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 && !rb.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrQueueEmpty
		}

		timer := time.AfterFunc(remaining, func() {
			rb.mu.Lock()
			rb.cond.Broadcast()
			rb.mu.Unlock()
		})
		rb.cond.Wait()
		timer.Stop()
	}

	if rb.count == 0 {
		if rb.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}
	return rb.popLocked(), nil
}

// popLocked removes the head envelope. Caller must hold the lock and
// have checked count > 0.
func (rb *RingBuffer) popLocked() *Envelope {
	env := rb.buffer[rb.head]
	rb.buffer[rb.head] = nil // allow GC
	rb.head = (rb.head + 1) % rb.size
	rb.count--
	atomic.AddUint64(&rb.totalPopped, 1)
	return env
}

// Len returns the current number of envelopes in the queue.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the capacity of the queue.
func (rb *RingBuffer) Cap() int {
	return rb.size
}

// Close closes the queue and wakes up any waiting consumers. Queued
// envelopes can still be drained.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}

// Metrics returns queue statistics.
func (rb *RingBuffer) Metrics() Metrics {
	return Metrics{
		Pushed:   atomic.LoadUint64(&rb.totalPushed),
		Popped:   atomic.LoadUint64(&rb.totalPopped),
		Dropped:  atomic.LoadUint64(&rb.totalDropped),
		Depth:    rb.Len(),
		Capacity: rb.size,
	}
}

// Metrics holds statistics about queue operations.
type Metrics struct {
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}
