// Package engine implements the task synchronization engine.
//
// The engine is the single authoritative point of mutation. It receives
// events from connected peers, applies them to the task store, and fans the
// committed result out to every connected peer.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All events from all peers go through one FIFO queue drained by Run() in a
// single goroutine. This gives:
//   - Per-connection FIFO: a peer's events are handled in the order received
//   - Store-commit order equals broadcast order
//   - A newly connected peer's snapshot and subsequent deltas never interleave
//
// Event Processing Flow:
//  1. Transport calls Connect / Receive / Disconnect, which enqueue events
//  2. Run() dequeues events one at a time
//  3. processEvent() routes to the matching handler
//  4. The handler performs exactly one store mutation (or one read for snapshots)
//  5. On success the result is broadcast; on failure only the originator
//     receives operation-failed
//
// Handlers never terminate a connection. Broadcast delivery is a synchronous
// fan-out into each peer's outbox; a peer whose outbox is full or closed is
// dropped from the registry and closed.
package engine
