// Package reconcile turns the flat record list received from the engine into
// the two-level task tree the client renders.
//
// Every change (snapshot, created, updated, deleted) edits the flat list and
// then re-runs the full hierarchy pass:
//
//  1. Map every legacyId to its canonical id.
//  2. Normalise parentRef: a canonical id is kept, a legacy id is rewritten
//     to the canonical id, anything else leaves the record a root (orphan).
//  3. Partition into roots and children. A child must point at a root.
//  4. Attach children under their parent in flat-list order.
//  5. Recompute priority score, overdue flag and quadrant from the clock.
//
// Orphans are logged at WARN and kept; nothing is ever dropped.
package reconcile
