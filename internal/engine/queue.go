package engine

import (
	"sync"

	"github.com/roach88/versync/internal/entity"
	"github.com/roach88/versync/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeLocal is a mutation originated by the host application.
	EventTypeLocal EventType = iota + 1
	// EventTypeInbound is a notification received from the server.
	EventTypeInbound
)

func (t EventType) String() string {
	switch t {
	case EventTypeLocal:
		return "local"
	case EventTypeInbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// Event wraps local mutations and inbound notifications for the queues.
type Event struct {
	Type EventType

	// Mutate runs against the replica on the tick goroutine (local events).
	Mutate func(*entity.Registry) error
	// done receives the result of Mutate, if the submitter waits for it.
	done chan error

	// Message is the received notification (inbound events).
	Message *ir.Message
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that a burst of notifications never blocks
// the transport reader.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Clear the slot so the closure and message can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel. Events still
// queued can be dequeued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
