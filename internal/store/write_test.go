package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quadrant/internal/task"
)

func TestInsert_AssignsIDAndTimestamps(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	f := createTestFields("Pay rent", "owner-1")
	f.Importance = 9
	f.Urgency = 10
	f.DueDate = &due
	f.Link = "https://bank.example"

	got, err := s.Insert(ctx, f)
	require.NoError(t, err)

	assert.Equal(t, "task-1", got.ID)
	assert.Equal(t, "Pay rent", got.Title)
	assert.Equal(t, 9.0, got.Importance)
	assert.Equal(t, 10.0, got.Urgency)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.LegacyID)
	assert.Empty(t, got.ParentRef)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, testEpoch, got.CreatedAt)
	assert.Equal(t, testEpoch, got.UpdatedAt)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
	assert.Equal(t, "https://bank.example", got.Link)
}

func TestInsert_DueDateRoundTripsAcrossAcceptedRange(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	v := task.MustNewValidator()
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		due     string
		overdue bool
	}{
		{due: "2300-01-01", overdue: false},
		{due: "9999-12-31T23:59:59.123456Z", overdue: false},
		{due: "1500-06-01", overdue: true},
		{due: "0000-01-01", overdue: true},
	}
	for _, tt := range tests {
		t.Run(tt.due, func(t *testing.T) {
			f, err := v.Create(task.CreateInput{Title: "Renew lease", DueDate: tt.due}, "owner-1")
			require.NoError(t, err)

			got, err := s.Insert(ctx, f)
			require.NoError(t, err)
			require.NotNil(t, got.DueDate)
			assert.True(t, f.DueDate.Equal(*got.DueDate), "stored %s, sent %s", got.DueDate, f.DueDate)

			read, err := s.FindByID(ctx, got.ID)
			require.NoError(t, err)
			assert.True(t, f.DueDate.Equal(*read.DueDate))
			assert.Equal(t, tt.overdue, task.IsOverdue(read, now))
		})
	}
}

func TestInsert_StoresUnixMicroseconds(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	due := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	f := createTestFields("Renew lease", "owner-1")
	f.DueDate = &due
	got, err := s.Insert(ctx, f)
	require.NoError(t, err)

	var dueRaw, createdRaw int64
	err = s.db.QueryRowContext(ctx, `SELECT due_date, created_at FROM tasks WHERE id = ?`, got.ID).Scan(&dueRaw, &createdRaw)
	require.NoError(t, err)
	assert.Equal(t, due.UnixMicro(), dueRaw)
	assert.Equal(t, testEpoch.UnixMicro(), createdRaw)
}

func TestInsert_RejectsOutOfRangeScores(t *testing.T) {
	s, _ := createTestStore(t)

	f := createTestFields("Broken", "owner-1")
	f.Importance = 11

	_, err := s.Insert(context.Background(), f)
	assert.Error(t, err, "CHECK constraint backs up payload validation")
}

func TestPatch_UpdatesFieldsAndTimestamp(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	created, err := s.Insert(ctx, createTestFields("Draft", "owner-1"))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	got, err := s.Patch(ctx, created.ID, task.Patch{
		Title:   ptr("Final"),
		Urgency: ptr(8.0),
		Notes:   task.Some("call first"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, 8.0, got.Urgency)
	assert.Equal(t, float64(task.DefaultImportance), got.Importance, "unpatched field kept")
	assert.Equal(t, "call first", got.Notes)
	assert.Equal(t, testEpoch, got.CreatedAt)
	assert.Equal(t, testEpoch.Add(time.Minute), got.UpdatedAt)
}

func TestPatch_CompletedTransitions(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	created, err := s.Insert(ctx, createTestFields("Report", "owner-1"))
	require.NoError(t, err)

	doneAt := clock.Advance(time.Hour)
	got, err := s.Patch(ctx, created.ID, task.Patch{Completed: ptr(true)})
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, doneAt, *got.CompletedAt)

	// true -> true keeps the original completion time
	clock.Advance(time.Hour)
	got, err = s.Patch(ctx, created.ID, task.Patch{Completed: ptr(true)})
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, doneAt, *got.CompletedAt)

	got, err = s.Patch(ctx, created.ID, task.Patch{Completed: ptr(false)})
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
}

func TestPatch_ClearsOptionalFields(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	due := testEpoch.Add(24 * time.Hour)
	f := createTestFields("Child", "owner-1")
	f.ParentRef = "parent-1"
	f.DueDate = &due
	f.Link = "https://x.example"
	created, err := s.Insert(ctx, f)
	require.NoError(t, err)

	got, err := s.Patch(ctx, created.ID, task.Patch{
		ParentRef: task.Null[string](),
		DueDate:   task.Null[time.Time](),
		Link:      task.Null[string](),
	})
	require.NoError(t, err)

	assert.Empty(t, got.ParentRef)
	assert.Nil(t, got.DueDate)
	assert.Empty(t, got.Link)
}

func TestPatch_NotFound(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.Patch(context.Background(), "missing", task.Patch{Title: ptr("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, task.IsNotFound(err))
}

func TestPatch_EmptyRejected(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.Patch(context.Background(), "any", task.Patch{})
	assert.True(t, task.IsValidation(err))
}

func TestToggle_TwiceRestoresState(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	created, err := s.Insert(ctx, createTestFields("Pay rent", "owner-1"))
	require.NoError(t, err)

	toggledAt := clock.Advance(time.Second)
	once, err := s.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, once.Completed)
	require.NotNil(t, once.CompletedAt)
	assert.Equal(t, toggledAt, *once.CompletedAt)
	assert.False(t, once.CompletedAt.Before(created.CreatedAt))

	clock.Advance(time.Second)
	twice, err := s.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Completed, twice.Completed)
	assert.Equal(t, created.CompletedAt, twice.CompletedAt)
}

func TestToggle_NotFound(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.Toggle(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	created, err := s.Insert(ctx, createTestFields("Temp", "owner-1"))
	require.NoError(t, err)

	removed, err := s.Remove(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, removed, "second delete removes nothing")

	_, err = s.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove_LeavesChildrenInPlace(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	parent, err := s.Insert(ctx, createTestFields("Parent", "owner-1"))
	require.NoError(t, err)
	f := createTestFields("Child", "owner-1")
	f.ParentRef = parent.ID
	child, err := s.Insert(ctx, f)
	require.NoError(t, err)

	_, err = s.Remove(ctx, parent.ID)
	require.NoError(t, err)

	got, err := s.FindByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, got.ParentRef)
}
