package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/quadrant/internal/task"
)

// Insert stores a new record built from validated fields.
// The store assigns the id and sets created_at = updated_at = now.
// New records are never completed and never carry a legacy id.
func (s *Store) Insert(ctx context.Context, f task.Fields) (task.Task, error) {
	now := toUnix(s.timestamp())
	id := s.ids.Generate()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks
		(id, title, importance, urgency, completed, parent_ref, due_date, link, notes, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+taskColumns,
		id,
		f.Title,
		f.Importance,
		f.Urgency,
		nullString(f.ParentRef),
		toNullUnix(f.DueDate),
		f.Link,
		f.Notes,
		f.OwnerID,
		now,
		now,
	)

	t, err := scanTask(row)
	if err != nil {
		return task.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// Patch applies p to the record with the given id and bumps updated_at.
//
// When p sets Completed, completed_at follows the transition: set to now on
// false→true, kept on true→true, cleared on any →false.
//
// Returns ErrNotFound if no record has that id.
func (s *Store) Patch(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	if p.IsEmpty() {
		return task.Task{}, &task.ValidationError{Reason: "patch contains no fields"}
	}

	now := toUnix(s.timestamp())
	var (
		sets []string
		args []any
	)
	set := func(clause string, vals ...any) {
		sets = append(sets, clause)
		args = append(args, vals...)
	}

	if p.Title != nil {
		set("title = ?", *p.Title)
	}
	if p.Importance != nil {
		set("importance = ?", *p.Importance)
	}
	if p.Urgency != nil {
		set("urgency = ?", *p.Urgency)
	}
	if p.Completed != nil {
		c := boolInt(*p.Completed)
		// SET expressions see the pre-update row, so completed here is the old value.
		set(`completed_at = CASE
			WHEN ? = 0 THEN NULL
			WHEN completed = 1 AND completed_at IS NOT NULL THEN completed_at
			ELSE ? END`, c, now)
		set("completed = ?", c)
	}
	if p.DueDate.Set {
		set("due_date = ?", toNullUnix(p.DueDate.Value))
	}
	if p.ParentRef.Set {
		set("parent_ref = ?", nullStringPtr(p.ParentRef.Value))
	}
	if p.Link.Set {
		set("link = ?", derefString(p.Link.Value))
	}
	if p.Notes.Set {
		set("notes = ?", derefString(p.Notes.Value))
	}
	set("updated_at = ?", now)
	args = append(args, id)

	row := s.db.QueryRowContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? RETURNING "+taskColumns,
		args...,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("patch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("patch task %s: %w", id, err)
	}
	return t, nil
}

// Toggle flips completed and sets or clears completed_at in one statement.
// Returns ErrNotFound if no record has that id.
func (s *Store) Toggle(ctx context.Context, id string) (task.Task, error) {
	now := toUnix(s.timestamp())

	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET
			completed = 1 - completed,
			completed_at = CASE WHEN completed = 0 THEN ? ELSE NULL END,
			updated_at = ?
		WHERE id = ?
		RETURNING `+taskColumns,
		now, now, id,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("toggle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("toggle task %s: %w", id, err)
	}
	return t, nil
}

// Remove deletes the record with the given id.
// Returns false (and no error) if nothing was deleted.
//
// Children are left in place; their parent_ref becomes unresolvable.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove task %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove task %s: rows affected: %w", id, err)
	}
	return n > 0, nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return nullString(*s)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
