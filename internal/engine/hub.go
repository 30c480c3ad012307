package engine

import (
	"sync"

	"github.com/roach88/quadrant/internal/protocol"
)

// Peer is one connected client as seen by the engine.
//
// Send must not block: it queues the envelope in the peer's outbox and
// returns an error if the outbox is full or the peer is closed.
type Peer interface {
	ID() string
	Owner() string
	Send(env protocol.Envelope) error
	Close()
}

// hub is the registry of connected peers.
//
// Mutated only from the Run loop; the mutex exists so Count can be read
// from other goroutines (health checks, tests).
type hub struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

func newHub() *hub {
	return &hub{peers: make(map[string]Peer)}
}

func (h *hub) add(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.ID()] = p
}

// remove deletes p and reports whether it was registered.
func (h *hub) remove(p Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p.ID()]; !ok {
		return false
	}
	delete(h.peers, p.ID())
	return true
}

// Count returns the number of registered peers.
func (h *hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// snapshot returns the registered peers. Callers may send without holding the lock.
func (h *hub) snapshot() []Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

// closeAll closes and forgets every peer.
func (h *hub) closeAll() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]Peer)
	h.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
}
