package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// CreateInput is the inbound payload of create-task and create-subtask.
type CreateInput struct {
	Title      string   `json:"title"`
	Importance *float64 `json:"importance,omitempty"`
	Urgency    *float64 `json:"urgency,omitempty"`
	Link       string   `json:"link,omitempty"`
	DueDate    string   `json:"dueDate,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	ParentRef  string   `json:"parentRef,omitempty"`
}

// PatchInput is the inbound patch of update-task.
//
// Optional text fields use Nullable so that an explicit JSON null clears
// the stored value while an absent key leaves it untouched.
type PatchInput struct {
	Title      *string          `json:"title,omitempty"`
	Importance *float64         `json:"importance,omitempty"`
	Urgency    *float64         `json:"urgency,omitempty"`
	Completed  *bool            `json:"completed,omitempty"`
	DueDate    Nullable[string] `json:"dueDate,omitzero"`
	ParentRef  Nullable[string] `json:"parentRef,omitzero"`
	Link       Nullable[string] `json:"link,omitzero"`
	Notes      Nullable[string] `json:"notes,omitzero"`
}

// Nullable distinguishes "absent" from "explicitly null" in JSON payloads.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Some returns a set Nullable holding v.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null returns a set Nullable with no value.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// UnmarshalJSON marks the field as present; a JSON null leaves Value nil.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// MarshalJSON encodes a missing value as null.
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// IsZero lets `omitzero` drop unset fields.
func (n Nullable[T]) IsZero() bool {
	return !n.Set
}

// Accepted due date layouts. Date-only values are midnight UTC.
var dueDateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseDueDate parses a date-only or RFC 3339 due date.
func ParseDueDate(s string) (time.Time, error) {
	for _, layout := range dueDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		t = t.UTC().Truncate(time.Microsecond)
		if y := t.Year(); y < 0 || y > 9999 {
			return time.Time{}, fmt.Errorf("date %q is outside years 0000-9999 in UTC", s)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
