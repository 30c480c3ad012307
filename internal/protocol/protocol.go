// Package protocol defines the messages exchanged over the event channel.
//
// Every frame is one JSON Envelope. Inbound (client→server) events carry an
// optional requestId; the server echoes it on the reply delivered to the
// originating connection only.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/quadrant/internal/task"
)

// Outbound (server→client) event names.
const (
	EventSnapshot        = "snapshot"
	EventTaskCreated     = "task-created"
	EventTaskUpdated     = "task-updated"
	EventTaskDeleted     = "task-deleted"
	EventOperationFailed = "operation-failed"
)

// Inbound (client→server) event names.
const (
	EventCreateTask       = "create-task"
	EventCreateSubtask    = "create-subtask"
	EventUpdateTask       = "update-task"
	EventDeleteTask       = "delete-task"
	EventToggleCompletion = "toggle-completion"
	EventRequestSnapshot  = "request-snapshot"
)

// Envelope is a single named event.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SnapshotPayload carries the full ordered record list.
type SnapshotPayload struct {
	Records []task.Task `json:"records"`
}

// RecordPayload carries one created or updated record.
type RecordPayload struct {
	Record task.Task `json:"record"`
}

// IDPayload addresses a record by id. Used by delete-task,
// toggle-completion and the task-deleted marker.
type IDPayload struct {
	ID string `json:"id"`
}

// UpdateTaskPayload is the update-task request.
type UpdateTaskPayload struct {
	ID    string          `json:"id"`
	Patch task.PatchInput `json:"patch"`
}

// CreateSubtaskPayload is the create-subtask request.
type CreateSubtaskPayload struct {
	Fields    task.CreateInput `json:"fields"`
	ParentRef string           `json:"parentRef"`
}

// FailurePayload is the operation-failed reply.
type FailurePayload struct {
	Code          string `json:"code"`
	Reason        string `json:"reason"`
	OriginalEvent string `json:"originalEvent"`
}

// New builds an envelope with a JSON-encoded payload.
// A nil payload produces an envelope without one.
func New(eventType string, payload any) (Envelope, error) {
	env := Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env.Payload = data
	return env, nil
}

// MustNew is New for payload types that always encode.
func MustNew(eventType string, payload any) Envelope {
	env, err := New(eventType, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the payload into v. A missing payload decodes as {}.
func (e Envelope) Decode(v any) error {
	data := e.Payload
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// WithRequestID returns a copy of e correlated to requestID.
func (e Envelope) WithRequestID(requestID string) Envelope {
	e.RequestID = requestID
	return e
}

// IsMutation reports whether eventType changes persisted state.
func IsMutation(eventType string) bool {
	switch eventType {
	case EventCreateTask, EventCreateSubtask, EventUpdateTask, EventDeleteTask, EventToggleCompletion:
		return true
	default:
		return false
	}
}
