package testutil

import (
	"errors"
	"sync"

	"github.com/roach88/quadrant/internal/protocol"
)

// ErrPeerClosed is returned by RecordingPeer.Send after Close.
var ErrPeerClosed = errors.New("peer closed")

// RecordingPeer is an in-memory engine peer that keeps every envelope it
// is sent.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingPeer struct {
	id    string
	owner string

	mu       sync.Mutex
	received []protocol.Envelope
	closed   bool
	failSend error
	notify   chan struct{}
}

// NewRecordingPeer creates a peer with the given id and owner.
func NewRecordingPeer(id, owner string) *RecordingPeer {
	return &RecordingPeer{id: id, owner: owner, notify: make(chan struct{}, 1)}
}

func (p *RecordingPeer) ID() string    { return p.id }
func (p *RecordingPeer) Owner() string { return p.owner }

// Send records env unless the peer is closed or FailSends was called.
func (p *RecordingPeer) Send(env protocol.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	if p.failSend != nil {
		return p.failSend
	}
	p.received = append(p.received, env)
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the peer closed.
func (p *RecordingPeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Closed reports whether Close was called.
func (p *RecordingPeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FailSends makes every later Send return err, simulating a full outbox.
func (p *RecordingPeer) FailSends(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failSend = err
}

// Received returns a copy of everything sent so far.
func (p *RecordingPeer) Received() []protocol.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Envelope, len(p.received))
	copy(out, p.received)
	return out
}

// Types returns the event names received so far, in order.
func (p *RecordingPeer) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.received))
	for i, env := range p.received {
		out[i] = env.Type
	}
	return out
}

// Last returns the most recent envelope, or false if none arrived.
func (p *RecordingPeer) Last() (protocol.Envelope, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.received) == 0 {
		return protocol.Envelope{}, false
	}
	return p.received[len(p.received)-1], true
}

// Reset forgets everything received so far.
func (p *RecordingPeer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = nil
}

// Notify signals after each successful Send. Coalesces.
func (p *RecordingPeer) Notify() <-chan struct{} {
	return p.notify
}
