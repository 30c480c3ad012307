package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/quadrant/internal/protocol"
	"github.com/roach88/quadrant/internal/task"
)

// handleMessage runs one inbound envelope to completion.
// All failures end here as operation-failed replies to the originator.
func (e *Engine) handleMessage(ctx context.Context, p Peer, env protocol.Envelope) {
	var err error

	switch env.Type {
	case protocol.EventCreateTask:
		err = e.handleCreate(ctx, p, env)
	case protocol.EventCreateSubtask:
		err = e.handleCreateSubtask(ctx, p, env)
	case protocol.EventUpdateTask:
		err = e.handleUpdate(ctx, p, env)
	case protocol.EventDeleteTask:
		err = e.handleDelete(ctx, p, env)
	case protocol.EventToggleCompletion:
		err = e.handleToggle(ctx, p, env)
	case protocol.EventRequestSnapshot:
		e.sendSnapshot(ctx, p, env.RequestID)
	default:
		err = &OperationError{
			Code:   CodeUnknownEvent,
			Reason: fmt.Sprintf("unknown event %q", env.Type),
			Event:  env.Type,
		}
	}

	if err != nil {
		e.fail(p, env, classify(env.Type, err))
	}
}

func (e *Engine) handleCreate(ctx context.Context, p Peer, env protocol.Envelope) error {
	var in task.CreateInput
	if err := decode(env, &in); err != nil {
		return err
	}

	fields, err := e.validator.Create(in, p.Owner())
	if err != nil {
		return err
	}
	if fields.ParentRef != "" {
		parent, err := e.resolveParent(ctx, env.Type, fields.ParentRef, "")
		if err != nil {
			return err
		}
		fields.ParentRef = parent.ID
	}

	return e.insert(ctx, p, env, fields)
}

func (e *Engine) handleCreateSubtask(ctx context.Context, p Peer, env protocol.Envelope) error {
	var in protocol.CreateSubtaskPayload
	if err := decode(env, &in); err != nil {
		return err
	}

	ref := strings.TrimSpace(in.ParentRef)
	if ref == "" {
		ref = strings.TrimSpace(in.Fields.ParentRef)
	}
	if ref == "" {
		return NewValidationError(env.Type, "invalid parentRef: is required")
	}

	fields, err := e.validator.Create(in.Fields, p.Owner())
	if err != nil {
		return err
	}

	parent, err := e.resolveParent(ctx, env.Type, ref, "")
	if err != nil {
		return err
	}
	fields.ParentRef = parent.ID

	return e.insert(ctx, p, env, fields)
}

func (e *Engine) insert(ctx context.Context, p Peer, env protocol.Envelope, fields task.Fields) error {
	rec, err := e.store.Insert(ctx, fields)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	e.logger.Info("task created",
		"id", rec.ID,
		"parent_ref", rec.ParentRef,
		"owner", rec.OwnerID,
		"peer_id", p.ID(),
	)
	e.broadcast(protocol.MustNew(protocol.EventTaskCreated, protocol.RecordPayload{Record: rec}),
		rec.OwnerID, p, env.RequestID)
	return nil
}

func (e *Engine) handleUpdate(ctx context.Context, p Peer, env protocol.Envelope) error {
	var in protocol.UpdateTaskPayload
	if err := decode(env, &in); err != nil {
		return err
	}
	id, err := requireID(env.Type, in.ID)
	if err != nil {
		return err
	}

	patch, err := e.validator.Patch(in.Patch)
	if err != nil {
		return err
	}
	if patch.ParentRef.Set && patch.ParentRef.Value != nil {
		parent, err := e.resolveParent(ctx, env.Type, *patch.ParentRef.Value, id)
		if err != nil {
			return err
		}
		patch.ParentRef = task.Some(parent.ID)
	}

	rec, err := e.store.Patch(ctx, id, patch)
	if err != nil {
		if task.IsNotFound(err) {
			return NewNotFoundError(env.Type, id)
		}
		return fmt.Errorf("patch task %s: %w", id, err)
	}

	e.logger.Info("task updated", "id", rec.ID, "completed", rec.Completed, "peer_id", p.ID())
	e.broadcast(protocol.MustNew(protocol.EventTaskUpdated, protocol.RecordPayload{Record: rec}),
		rec.OwnerID, p, env.RequestID)
	return nil
}

func (e *Engine) handleDelete(ctx context.Context, p Peer, env protocol.Envelope) error {
	var in protocol.IDPayload
	if err := decode(env, &in); err != nil {
		return err
	}
	id, err := requireID(env.Type, in.ID)
	if err != nil {
		return err
	}

	removed, err := e.store.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("remove task %s: %w", id, err)
	}
	if !removed {
		return NewNotFoundError(env.Type, id)
	}

	e.logger.Info("task deleted", "id", id, "peer_id", p.ID())
	// Markers carry no owner, so every peer drops the id from its list.
	e.broadcast(protocol.MustNew(protocol.EventTaskDeleted, protocol.IDPayload{ID: id}),
		"", p, env.RequestID)
	return nil
}

func (e *Engine) handleToggle(ctx context.Context, p Peer, env protocol.Envelope) error {
	var in protocol.IDPayload
	if err := decode(env, &in); err != nil {
		return err
	}
	id, err := requireID(env.Type, in.ID)
	if err != nil {
		return err
	}

	rec, err := e.store.Toggle(ctx, id)
	if err != nil {
		if task.IsNotFound(err) {
			return NewNotFoundError(env.Type, id)
		}
		return fmt.Errorf("toggle task %s: %w", id, err)
	}

	e.logger.Info("task toggled", "id", rec.ID, "completed", rec.Completed, "peer_id", p.ID())
	e.broadcast(protocol.MustNew(protocol.EventTaskUpdated, protocol.RecordPayload{Record: rec}),
		rec.OwnerID, p, env.RequestID)
	return nil
}

// resolveParent finds the record ref points at, by canonical id first and
// legacy id second. The parent must be a root: a record whose own parent
// still exists cannot take children. self is the id being re-parented, if any.
func (e *Engine) resolveParent(ctx context.Context, event, ref, self string) (task.Task, error) {
	ref = strings.TrimSpace(ref)
	parent, err := e.lookupRef(ctx, ref)
	if err != nil {
		if task.IsNotFound(err) {
			return task.Task{}, &OperationError{
				Code:   CodeNotFound,
				Reason: fmt.Sprintf("parent task %s does not exist", ref),
				Event:  event,
			}
		}
		return task.Task{}, fmt.Errorf("resolve parent %s: %w", ref, err)
	}

	if self != "" && parent.ID == self {
		return task.Task{}, NewValidationError(event, "invalid parentRef: a task cannot be its own parent")
	}

	if parent.HasParent() {
		_, err := e.lookupRef(ctx, parent.ParentRef)
		switch {
		case err == nil:
			return task.Task{}, NewValidationError(event,
				fmt.Sprintf("invalid parentRef: task %s is already a subtask", parent.ID))
		case !task.IsNotFound(err):
			return task.Task{}, fmt.Errorf("resolve grandparent %s: %w", parent.ParentRef, err)
		}
		// Orphaned parents render as roots and may take children.
	}

	return parent, nil
}

// lookupRef resolves a canonical or legacy id.
func (e *Engine) lookupRef(ctx context.Context, ref string) (task.Task, error) {
	rec, err := e.store.FindByID(ctx, ref)
	if err == nil || !task.IsNotFound(err) {
		return rec, err
	}
	return e.store.FindByLegacyID(ctx, ref)
}

// decode unmarshals an envelope payload, reporting failures as BAD_REQUEST.
func decode(env protocol.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return &OperationError{
			Code:   CodeBadRequest,
			Reason: "malformed payload",
			Event:  env.Type,
			Err:    err,
		}
	}
	return nil
}

func requireID(event, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", NewValidationError(event, "invalid id: is required")
	}
	return id, nil
}
