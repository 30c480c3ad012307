package engine

import (
	"sync"

	"github.com/roach88/quadrant/internal/protocol"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeConnect registers a peer and sends it a snapshot.
	EventTypeConnect EventType = iota + 1
	// EventTypeMessage carries one inbound envelope from a peer.
	EventTypeMessage
	// EventTypeDisconnect removes a peer from the registry.
	EventTypeDisconnect
)

// Event wraps peer lifecycle changes and inbound messages for the event queue.
type Event struct {
	Type    EventType
	Peer    Peer
	Message protocol.Envelope
}

// eventQueue is the single FIFO every peer's read goroutine feeds and the
// Run loop drains. It is unbounded so read pumps never block on the engine;
// a one-slot signal channel lets Run wait in a select.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Coalesce: one pending signal covers any number of events.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue pops the oldest event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the backing array does not pin the peer.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that fires when events may be available and is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further events and wakes the Run loop.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Drained reports whether the queue is closed and has no pending events.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}
