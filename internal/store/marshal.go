package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/quadrant/internal/task"
)

// taskColumns is the canonical column list for every task read.
// scanTask depends on this order.
const taskColumns = `id, legacy_id, title, importance, urgency, completed, completed_at,
	parent_ref, due_date, link, notes, owner_id, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one row laid out as taskColumns.
func scanTask(row rowScanner) (task.Task, error) {
	var (
		t           task.Task
		legacyID    sql.NullString
		parentRef   sql.NullString
		completed   int64
		completedAt sql.NullInt64
		dueDate     sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&t.ID,
		&legacyID,
		&t.Title,
		&t.Importance,
		&t.Urgency,
		&completed,
		&completedAt,
		&parentRef,
		&dueDate,
		&t.Link,
		&t.Notes,
		&t.OwnerID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return task.Task{}, err
	}

	t.LegacyID = legacyID.String
	t.ParentRef = parentRef.String
	t.Completed = completed != 0
	t.CompletedAt = fromNullUnix(completedAt)
	t.DueDate = fromNullUnix(dueDate)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)

	return t, nil
}

// scanTasks drains rows into a non-nil slice.
func scanTasks(rows *sql.Rows) ([]task.Task, error) {
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Timestamps are unix microseconds. That covers every date task.ParseDueDate
// accepts; nanoseconds overflow past 2262.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromUnix(n int64) time.Time {
	return time.UnixMicro(n).UTC()
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
