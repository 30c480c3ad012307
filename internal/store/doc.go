// Package store provides SQLite-backed persistence for task records.
//
// The store is a single document collection keyed by an opaque id, queryable
// by owner and by parent reference:
//   - Insert: assigns id, created_at and updated_at
//   - FindAll / FindByID / FindByLegacyID / FindChildren: reads
//   - Patch / Toggle: single-statement updates that maintain completed_at
//   - Remove: delete by id
//   - ImportLegacy: idempotent insert of migrated records keyed by legacy_id
//
// # Ordering
//
// FindAll returns records newest first: ORDER BY created_at DESC, rowid DESC.
// Timestamps are stored as INTEGER unix microseconds so that ordering never
// depends on text formatting. Sub-microsecond precision is dropped.
//
// # Atomicity
//
// Every mutation is one SQL statement using RETURNING, so callers get the
// committed row back without a second round trip and without holding a
// transaction open across calls.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
