package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/quadrant/internal/task"
)

// LegacyRecord is a task exported from the prior storage system.
//
// ParentRef is kept exactly as exported, so it usually names the parent's
// legacy id; the client reconciler resolves it through legacy_id.
type LegacyRecord struct {
	Fields      task.Fields
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// ImportLegacy inserts a migrated record with a fresh id.
//
// Uses ON CONFLICT(legacy_id) DO NOTHING for idempotency: re-importing the
// same export is safe and returns inserted=false for records already present.
func (s *Store) ImportLegacy(ctx context.Context, rec LegacyRecord) (t task.Task, inserted bool, err error) {
	f := rec.Fields
	if f.LegacyID == "" {
		return task.Task{}, false, &task.ValidationError{Field: "legacyId", Reason: "is required for import"}
	}

	now := s.timestamp()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	// completed_at is only meaningful for completed records.
	var completedAt *time.Time
	if rec.Completed {
		completedAt = rec.CompletedAt
		if completedAt == nil {
			completedAt = &created
		}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
		(id, legacy_id, title, importance, urgency, completed, completed_at, parent_ref, due_date, link, notes, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(legacy_id) WHERE legacy_id IS NOT NULL DO NOTHING
	`,
		s.ids.Generate(),
		f.LegacyID,
		f.Title,
		f.Importance,
		f.Urgency,
		boolInt(rec.Completed),
		toNullUnix(completedAt),
		nullString(f.ParentRef),
		toNullUnix(f.DueDate),
		f.Link,
		f.Notes,
		f.OwnerID,
		toUnix(created),
		toUnix(now),
	)
	if err != nil {
		return task.Task{}, false, fmt.Errorf("import legacy %s: %w", f.LegacyID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return task.Task{}, false, fmt.Errorf("import legacy %s: rows affected: %w", f.LegacyID, err)
	}

	t, err = s.FindByLegacyID(ctx, f.LegacyID)
	if err != nil {
		return task.Task{}, false, err
	}
	return t, n > 0, nil
}
