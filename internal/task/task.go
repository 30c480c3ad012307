package task

import "time"

// Score bounds shared by importance and urgency.
const (
	MinScore = 0
	MaxScore = 10

	// DefaultImportance and DefaultUrgency apply when a create payload omits them.
	DefaultImportance = 5
	DefaultUrgency    = 5
)

// Task is a single persisted task record.
//
// ID is assigned by the store and never changes. LegacyID is only present
// for records migrated from a prior storage system and is used solely to
// resolve stale ParentRef values.
type Task struct {
	ID          string     `json:"id"`
	LegacyID    string     `json:"legacyId,omitempty"`
	Title       string     `json:"title"`
	Importance  float64    `json:"importance"`
	Urgency     float64    `json:"urgency"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ParentRef   string     `json:"parentRef,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Link        string     `json:"link,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// HasParent reports whether the record carries a parent reference.
// The reference may still be unresolvable on the client.
func (t Task) HasParent() bool {
	return t.ParentRef != ""
}

// Fields is a validated create payload with defaults applied.
type Fields struct {
	Title      string
	Importance float64
	Urgency    float64
	Link       string
	Notes      string
	DueDate    *time.Time
	ParentRef  string
	OwnerID    string

	// LegacyID is only set by the legacy import path.
	LegacyID string
}

// Patch is a validated update payload. Nil pointers leave a field unchanged;
// a set Nullable with a nil Value clears the field.
type Patch struct {
	Title      *string
	Importance *float64
	Urgency    *float64
	Completed  *bool
	DueDate    Nullable[time.Time]
	ParentRef  Nullable[string]
	Link       Nullable[string]
	Notes      Nullable[string]
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil &&
		p.Importance == nil &&
		p.Urgency == nil &&
		p.Completed == nil &&
		!p.DueDate.Set &&
		!p.ParentRef.Set &&
		!p.Link.Set &&
		!p.Notes.Set
}
