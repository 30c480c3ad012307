// Package harness runs YAML conformance scenarios against the real
// synchronization engine.
//
// A scenario names a set of clients, optional legacy records to seed the
// store with, and a flow of inbound events. Each client is an in-memory
// engine peer with its own reconciler, so assertions can check both what a
// client was sent and what its reconciled view looks like.
//
// Determinism:
//   - the store and reconciler share a fake clock starting at 2026-01-01T00:00:00Z
//   - record ids are sequential (task-1, task-2, ...)
//   - after every step a barrier peer requests a snapshot; because the engine
//     is a single FIFO loop, the barrier reply means every earlier event has
//     been fully processed and broadcast
//
// Scenario values may reference ids captured by earlier steps as "$name".
package harness
