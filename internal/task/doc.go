// Package task defines the canonical task record shared by the store, the
// synchronization engine and the client reconciler.
//
// The package holds types and pure functions only:
//   - Task: the persisted record (opaque id, optional legacy id, scores, hierarchy link)
//   - CreateInput / PatchInput: inbound shapes of mutation events
//   - Fields / Patch: validated inputs with defaults applied
//   - PriorityScore, IsOverdue, QuadrantOf: derived values, never persisted
//
// Validation is driven by an embedded CUE schema (schema.cue). Titles are NFC
// normalised and trimmed before they are checked.
package task
