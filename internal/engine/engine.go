package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/quadrant/internal/protocol"
	"github.com/roach88/quadrant/internal/task"
)

// TaskStore is the persisted collection the engine mutates.
// Implemented by *store.Store.
type TaskStore interface {
	FindAll(ctx context.Context, ownerID string) ([]task.Task, error)
	FindByID(ctx context.Context, id string) (task.Task, error)
	FindByLegacyID(ctx context.Context, legacyID string) (task.Task, error)
	Insert(ctx context.Context, f task.Fields) (task.Task, error)
	Patch(ctx context.Context, id string, p task.Patch) (task.Task, error)
	Toggle(ctx context.Context, id string) (task.Task, error)
	Remove(ctx context.Context, id string) (bool, error)
}

// Engine is the single-writer synchronization event loop.
//
// Thread-safety model:
//   - Connect(), Receive(), Disconnect(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - PeerCount(), QueueLen(): safe from any goroutine
type Engine struct {
	store     TaskStore
	validator *task.Validator
	queue     *eventQueue
	hub       *hub
	scoped    bool
	logger    *slog.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithOwnerScoping limits snapshots and broadcasts to the peer's owner.
// When disabled (the default), every peer sees every record.
func WithOwnerScoping(scoped bool) Option {
	return func(e *Engine) {
		e.scoped = scoped
	}
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithValidator overrides the payload validator.
func WithValidator(v *task.Validator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// New creates an Engine backed by s.
func New(s TaskStore, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		queue:  newEventQueue(),
		hub:    newHub(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.validator == nil {
		e.validator = task.MustNewValidator()
	}
	return e
}

// Connect registers p. The engine replies with a snapshot once the connect
// event reaches the front of the queue. Returns false if the engine stopped.
func (e *Engine) Connect(p Peer) bool {
	return e.queue.Enqueue(Event{Type: EventTypeConnect, Peer: p})
}

// Receive submits one inbound envelope from p.
// Returns false if the engine stopped.
func (e *Engine) Receive(p Peer, env protocol.Envelope) bool {
	return e.queue.Enqueue(Event{Type: EventTypeMessage, Peer: p, Message: env})
}

// Disconnect unregisters p. Returns false if the engine stopped.
func (e *Engine) Disconnect(p Peer) bool {
	return e.queue.Enqueue(Event{Type: EventTypeDisconnect, Peer: p})
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called. Registered peers
// are closed on return.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "owner_scoped", e.scoped)
	defer e.hub.closeAll()

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.processEvent(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// A closed queue keeps signalling; drain it before returning.
			if e.queue.Drained() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// QueueLen returns the current number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// PeerCount returns the number of registered peers.
func (e *Engine) PeerCount() int {
	return e.hub.Count()
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(ctx context.Context, event Event) {
	if event.Peer == nil {
		e.logger.Error("event without peer dropped", "event_type", event.Type)
		return
	}

	switch event.Type {
	case EventTypeConnect:
		e.hub.add(event.Peer)
		e.logger.Info("peer connected",
			"peer_id", event.Peer.ID(),
			"owner", event.Peer.Owner(),
			"peers", e.hub.Count(),
		)
		e.sendSnapshot(ctx, event.Peer, "")

	case EventTypeDisconnect:
		if e.hub.remove(event.Peer) {
			e.logger.Info("peer disconnected",
				"peer_id", event.Peer.ID(),
				"peers", e.hub.Count(),
			)
		}

	case EventTypeMessage:
		e.handleMessage(ctx, event.Peer, event.Message)

	default:
		e.logger.Error("unknown event type", "event_type", event.Type, "peer_id", event.Peer.ID())
	}
}

// sendSnapshot replies to p with every record visible to it.
func (e *Engine) sendSnapshot(ctx context.Context, p Peer, requestID string) {
	records, err := e.store.FindAll(ctx, e.ownerFilter(p))
	if err != nil {
		e.fail(p, protocol.Envelope{Type: protocol.EventRequestSnapshot, RequestID: requestID},
			classify(protocol.EventRequestSnapshot, fmt.Errorf("load snapshot: %w", err)))
		return
	}

	env := protocol.MustNew(protocol.EventSnapshot, protocol.SnapshotPayload{Records: records}).
		WithRequestID(requestID)
	if err := p.Send(env); err != nil {
		e.dropPeer(p, err)
		return
	}

	e.logger.Debug("snapshot sent", "peer_id", p.ID(), "records", len(records))
}

// ownerFilter returns the owner id used for snapshot queries.
func (e *Engine) ownerFilter(p Peer) string {
	if !e.scoped {
		return ""
	}
	return p.Owner()
}

// broadcast delivers env to every peer allowed to see a record owned by owner.
// The origin always receives its copy, correlated to requestID.
// An empty owner reaches every peer.
func (e *Engine) broadcast(env protocol.Envelope, owner string, origin Peer, requestID string) {
	delivered := 0
	for _, p := range e.hub.snapshot() {
		isOrigin := origin != nil && p.ID() == origin.ID()
		if !isOrigin && e.scoped && owner != "" && p.Owner() != owner {
			continue
		}

		out := env
		if isOrigin {
			out = env.WithRequestID(requestID)
		}
		if err := p.Send(out); err != nil {
			e.dropPeer(p, err)
			continue
		}
		delivered++
	}

	e.logger.Debug("broadcast", "event", env.Type, "delivered", delivered)
}

// fail sends operation-failed to p only and logs the condition.
func (e *Engine) fail(p Peer, req protocol.Envelope, oe *OperationError) {
	attrs := []any{
		"event", req.Type,
		"code", oe.Code,
		"reason", oe.Reason,
		"peer_id", p.ID(),
	}
	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}
	if oe.Code == CodeStore {
		e.logger.Error("operation failed", append(attrs, "error", oe.Err)...)
	} else {
		e.logger.Warn("operation rejected", attrs...)
	}

	env := protocol.MustNew(protocol.EventOperationFailed, protocol.FailurePayload{
		Code:          string(oe.Code),
		Reason:        oe.Reason,
		OriginalEvent: req.Type,
	}).WithRequestID(req.RequestID)
	if err := p.Send(env); err != nil {
		e.dropPeer(p, err)
	}
}

// dropPeer unregisters and closes a peer that can no longer receive.
func (e *Engine) dropPeer(p Peer, err error) {
	if e.hub.remove(p) {
		e.logger.Warn("dropping peer", "peer_id", p.ID(), "error", err)
	}
	p.Close()
}
