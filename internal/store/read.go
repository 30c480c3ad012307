package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/quadrant/internal/task"
)

// FindAll returns every record owned by ownerID, newest first.
// An empty ownerID returns all records.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) FindAll(ctx context.Context, ownerID string) ([]task.Task, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ownerID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			ORDER BY created_at DESC, rowid DESC
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE owner_id = ?
			ORDER BY created_at DESC, rowid DESC
		`, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return scanTasks(rows)
}

// FindByID retrieves a single record.
// Returns ErrNotFound if no record has that id.
func (s *Store) FindByID(ctx context.Context, id string) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, id)
	return scanOne(row, id)
}

// FindByLegacyID retrieves a migrated record by its original identifier.
// Returns ErrNotFound if no record carries that legacy id.
func (s *Store) FindByLegacyID(ctx context.Context, legacyID string) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE legacy_id = ?
	`, legacyID)
	return scanOne(row, legacyID)
}

// FindChildren returns records whose parent_ref equals ref, newest first.
func (s *Store) FindChildren(ctx context.Context, ref string) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE parent_ref = ?
		ORDER BY created_at DESC, rowid DESC
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", ref, err)
	}
	return scanTasks(rows)
}

// scanOne maps sql.ErrNoRows to ErrNotFound.
func scanOne(row *sql.Row, key string) (task.Task, error) {
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("read task %s: %w", key, err)
	}
	return t, nil
}
