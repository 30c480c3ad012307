package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/quadrant/internal/task"
	"github.com/roach88/quadrant/internal/testutil"
)

var testEpoch = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

// createTestStore creates a store in a temp dir with a fake clock and
// sequential ids ("task-1", "task-2", ...).
func createTestStore(t *testing.T) (*Store, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testEpoch)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(clock.Now),
		WithIDGenerator(testutil.NewSequentialIDs("task")),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// createTestFields returns minimal valid fields with defaults applied.
func createTestFields(title, owner string) task.Fields {
	return task.Fields{
		Title:      title,
		Importance: task.DefaultImportance,
		Urgency:    task.DefaultUrgency,
		OwnerID:    owner,
	}
}

func ptr[T any](v T) *T { return &v }

func titles(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}
