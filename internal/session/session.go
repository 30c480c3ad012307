// Package session is the client application shell: it owns one event
// channel client and one reconciler, and is the only thing the rendering
// layer talks to.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/quadrant/internal/channel"
	"github.com/roach88/quadrant/internal/protocol"
	"github.com/roach88/quadrant/internal/reconcile"
	"github.com/roach88/quadrant/internal/task"
)

// DefaultSnapshotTimeout bounds the wait for the first snapshot.
const DefaultSnapshotTimeout = 5 * time.Second

// Transport is the part of *channel.Client a session drives.
type Transport interface {
	Subscribe(s channel.Subscriber)
	Run(ctx context.Context) error
	Request(ctx context.Context, eventType string, payload any) (protocol.Envelope, error)
}

// Failure is an operation-failed notification.
type Failure struct {
	Event     string
	Code      string
	Reason    string
	RequestID string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s failed: %s", f.Event, f.Reason)
}

// Session ties a transport to a reconciler.
//
// Thread-safety: All methods are safe for concurrent use.
type Session struct {
	transport       Transport
	reconciler      *reconcile.Reconciler
	snapshotTimeout time.Duration
	logger          *slog.Logger

	snapshotOnce sync.Once
	snapshotCh   chan struct{}

	mu        sync.Mutex
	onFailure []func(Failure)
	onState   []func(channel.ConnState)
}

// Option configures a Session.
type Option func(*Session)

// WithSnapshotTimeout sets the bounded wait used by WaitForSnapshot.
func WithSnapshotTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.snapshotTimeout = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a session and subscribes it to t.
func New(t Transport, r *reconcile.Reconciler, opts ...Option) *Session {
	s := &Session{
		transport:       t,
		reconciler:      r,
		snapshotTimeout: DefaultSnapshotTimeout,
		logger:          slog.Default(),
		snapshotCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	t.Subscribe(s)
	return s
}

// Reconciler returns the session's reconciler for read-only consumers.
func (s *Session) Reconciler() *reconcile.Reconciler {
	return s.reconciler
}

// Run drives the transport until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	return s.transport.Run(ctx)
}

// OnFailure registers fn for every operation-failed event, including
// failures of requests made by other code paths.
func (s *Session) OnFailure(fn func(Failure)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = append(s.onFailure, fn)
}

// OnStateChange registers fn for connection transitions.
func (s *Session) OnStateChange(fn func(channel.ConnState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = append(s.onState, fn)
}

// HandleEnvelope implements channel.Subscriber.
func (s *Session) HandleEnvelope(env protocol.Envelope) {
	if env.Type == protocol.EventOperationFailed {
		s.notifyFailure(env)
		return
	}

	if _, err := s.reconciler.Apply(env); err != nil {
		s.logger.Warn("discarding undecodable event", "event", env.Type, "error", err)
		return
	}
	if env.Type == protocol.EventSnapshot {
		s.snapshotOnce.Do(func() { close(s.snapshotCh) })
	}
}

// HandleState implements channel.Subscriber. The task list keeps its last
// known good state across disconnects; the server sends a fresh snapshot
// on every connect.
func (s *Session) HandleState(state channel.ConnState) {
	s.logger.Info("connection state changed", "state", state.String())

	s.mu.Lock()
	listeners := append([]func(channel.ConnState){}, s.onState...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

func (s *Session) notifyFailure(env protocol.Envelope) {
	var fp protocol.FailurePayload
	if err := env.Decode(&fp); err != nil {
		s.logger.Warn("undecodable failure event", "error", err)
		return
	}
	f := Failure{Event: fp.OriginalEvent, Code: fp.Code, Reason: fp.Reason, RequestID: env.RequestID}
	s.logger.Warn("operation failed", "event", f.Event, "code", f.Code, "reason", f.Reason)

	s.mu.Lock()
	listeners := append([]func(Failure){}, s.onFailure...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(f)
	}
}

// WaitForSnapshot blocks until the first snapshot has been applied, the
// snapshot timeout elapses or ctx ends. On timeout the reconciler falls back
// to an empty list; a snapshot arriving later still replaces it.
func (s *Session) WaitForSnapshot(ctx context.Context) reconcile.View {
	timer := time.NewTimer(s.snapshotTimeout)
	defer timer.Stop()

	select {
	case <-s.snapshotCh:
	case <-timer.C:
		if _, installed := s.reconciler.ResetIfNotReady(); installed {
			s.logger.Warn("no snapshot received, starting with an empty list", "timeout", s.snapshotTimeout)
		}
	case <-ctx.Done():
	}
	return s.reconciler.View()
}

// CreateTask sends create-task and returns the stored record.
func (s *Session) CreateTask(ctx context.Context, in task.CreateInput) (task.Task, error) {
	return s.recordRequest(ctx, protocol.EventCreateTask, in)
}

// CreateSubtask sends create-subtask under parentRef.
func (s *Session) CreateSubtask(ctx context.Context, parentRef string, in task.CreateInput) (task.Task, error) {
	return s.recordRequest(ctx, protocol.EventCreateSubtask, protocol.CreateSubtaskPayload{
		Fields:    in,
		ParentRef: parentRef,
	})
}

// UpdateTask sends update-task.
func (s *Session) UpdateTask(ctx context.Context, id string, patch task.PatchInput) (task.Task, error) {
	return s.recordRequest(ctx, protocol.EventUpdateTask, protocol.UpdateTaskPayload{ID: id, Patch: patch})
}

// ToggleCompletion sends toggle-completion.
func (s *Session) ToggleCompletion(ctx context.Context, id string) (task.Task, error) {
	return s.recordRequest(ctx, protocol.EventToggleCompletion, protocol.IDPayload{ID: id})
}

// DeleteTask sends delete-task.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	_, err := s.transport.Request(ctx, protocol.EventDeleteTask, protocol.IDPayload{ID: id})
	return err
}

// RequestSnapshot re-requests the full list.
func (s *Session) RequestSnapshot(ctx context.Context) (reconcile.View, error) {
	if _, err := s.transport.Request(ctx, protocol.EventRequestSnapshot, struct{}{}); err != nil {
		return s.reconciler.View(), err
	}
	return s.reconciler.View(), nil
}

func (s *Session) recordRequest(ctx context.Context, eventType string, payload any) (task.Task, error) {
	reply, err := s.transport.Request(ctx, eventType, payload)
	if err != nil {
		return task.Task{}, err
	}
	var rp protocol.RecordPayload
	if err := reply.Decode(&rp); err != nil {
		return task.Task{}, err
	}
	return rp.Record, nil
}
