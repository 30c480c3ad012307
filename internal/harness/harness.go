package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/quadrant/internal/engine"
	"github.com/roach88/quadrant/internal/protocol"
	"github.com/roach88/quadrant/internal/reconcile"
	"github.com/roach88/quadrant/internal/store"
	"github.com/roach88/quadrant/internal/task"
	"github.com/roach88/quadrant/internal/testutil"
)

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// barrierTimeout bounds the wait for the engine to drain one step.
const barrierTimeout = 5 * time.Second

const defaultOwner = "local"

type client struct {
	spec    ClientSpec
	peer    *testutil.RecordingPeer
	rec     *reconcile.Reconciler
	applied int
}

// Harness executes one scenario against a fresh engine.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	clock   *testutil.FakeClock
	logger  *slog.Logger
	clients map[string]*client
	order   []*client
	barrier *testutil.RecordingPeer
	seq     int
	result  *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Seed legacy records
//  2. Start the engine and connect every client
//  3. Execute flow steps, checking expect clauses
//  4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewFakeClock(Epoch)
	st, err := store.Open(":memory:",
		store.WithClock(clock.Now),
		store.WithIDGenerator(testutil.NewSequentialIDs("task")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store:   st,
		engine:  engine.New(st, engine.WithOwnerScoping(scenario.OwnerScoped), engine.WithLogger(logger)),
		clock:   clock,
		logger:  logger,
		clients: make(map[string]*client),
		barrier: testutil.NewRecordingPeer("harness-barrier", ""),
		result:  NewResult(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.seed(ctx, scenario.Legacy); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.engine.Run(ctx)
	}()
	defer func() {
		h.engine.Stop()
		<-done
	}()

	h.engine.Connect(h.barrier)
	for _, spec := range scenario.Clients {
		if spec.Owner == "" {
			spec.Owner = defaultOwner
		}
		c := &client{
			spec: spec,
			peer: testutil.NewRecordingPeer(spec.Name, spec.Owner),
			rec:  reconcile.New(reconcile.WithClock(clock.Now), reconcile.WithLogger(logger)),
		}
		h.clients[spec.Name] = c
		h.order = append(h.order, c)
		h.engine.Connect(c.peer)
	}
	if err := h.sync(); err != nil {
		return nil, err
	}

	for i, step := range scenario.Flow {
		if err := h.executeStep(i, step); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(h, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// seed imports legacy records straight into the store.
func (h *Harness) seed(ctx context.Context, legacy []LegacySpec) error {
	for i, l := range legacy {
		owner := l.Owner
		if owner == "" {
			owner = defaultOwner
		}
		importance, urgency := l.Importance, l.Urgency
		if importance == 0 {
			importance = task.DefaultImportance
		}
		if urgency == 0 {
			urgency = task.DefaultUrgency
		}

		rec, _, err := h.store.ImportLegacy(ctx, store.LegacyRecord{
			Fields: task.Fields{
				Title:      l.Title,
				Importance: importance,
				Urgency:    urgency,
				ParentRef:  l.ParentRef,
				OwnerID:    owner,
				LegacyID:   l.LegacyID,
			},
			Completed: l.Completed,
		})
		if err != nil {
			return fmt.Errorf("legacy[%d]: %w", i, err)
		}
		if l.As != "" {
			h.result.Refs[l.As] = rec.ID
		}
		h.clock.Advance(time.Second)
	}
	return nil
}

func (h *Harness) executeStep(index int, step FlowStep) error {
	if step.Advance > 0 {
		h.clock.Advance(step.Advance)
	}

	payload, err := h.substitute(step.Payload)
	if err != nil {
		return fmt.Errorf("flow[%d]: %w", index, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	env, err := protocol.New(step.Send, payload)
	if err != nil {
		return fmt.Errorf("flow[%d]: %w", index, err)
	}
	requestID := fmt.Sprintf("step-%d", index+1)
	env.RequestID = requestID

	c := h.clients[step.Client]
	h.engine.Receive(c.peer, env)
	if err := h.sync(); err != nil {
		return fmt.Errorf("flow[%d]: %w", index, err)
	}

	reply, ok := findReply(c.peer.Received(), requestID)
	if !ok {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: no reply delivered to %s", index, step.Send, step.Client))
		return nil
	}

	if step.As != "" {
		var rp protocol.RecordPayload
		if err := reply.Decode(&rp); err == nil && rp.Record.ID != "" {
			h.result.Refs[step.As] = rp.Record.ID
		}
	}

	if step.Expect != nil {
		if msg := h.checkExpect(reply, step.Expect); msg != "" {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: %s", index, step.Send, msg))
		}
	}
	return nil
}

// sync waits for the engine to drain, then feeds each client's new
// envelopes to its reconciler and the trace.
func (h *Harness) sync() error {
	h.seq++
	id := fmt.Sprintf("barrier-%d", h.seq)
	h.engine.Receive(h.barrier, protocol.Envelope{Type: protocol.EventRequestSnapshot, RequestID: id})

	deadline := time.NewTimer(barrierTimeout)
	defer deadline.Stop()
	for {
		if _, ok := findReply(h.barrier.Received(), id); ok {
			break
		}
		select {
		case <-h.barrier.Notify():
		case <-deadline.C:
			return fmt.Errorf("engine did not drain within %s", barrierTimeout)
		}
	}

	for _, c := range h.order {
		received := c.peer.Received()
		for _, env := range received[c.applied:] {
			if _, err := c.rec.Apply(env); err != nil {
				h.result.AddError(fmt.Sprintf("client %s: %v", c.spec.Name, err))
			}
			h.result.Trace = append(h.result.Trace, traceEvent(c.spec.Name, env))
		}
		c.applied = len(received)
	}
	return nil
}

func findReply(envs []protocol.Envelope, requestID string) (protocol.Envelope, bool) {
	for _, env := range envs {
		if env.RequestID == requestID {
			return env, true
		}
	}
	return protocol.Envelope{}, false
}

func traceEvent(clientName string, env protocol.Envelope) TraceEvent {
	ev := TraceEvent{Client: clientName, Type: env.Type, RequestID: env.RequestID}
	switch env.Type {
	case protocol.EventSnapshot:
		var p protocol.SnapshotPayload
		if env.Decode(&p) == nil {
			n := len(p.Records)
			ev.Records = &n
		}
	case protocol.EventTaskCreated, protocol.EventTaskUpdated:
		var p protocol.RecordPayload
		if env.Decode(&p) == nil {
			ev.ID = p.Record.ID
			ev.Title = p.Record.Title
			done := p.Record.Completed
			ev.Completed = &done
		}
	case protocol.EventTaskDeleted:
		var p protocol.IDPayload
		if env.Decode(&p) == nil {
			ev.ID = p.ID
		}
	case protocol.EventOperationFailed:
		var p protocol.FailurePayload
		if env.Decode(&p) == nil {
			ev.Code = p.Code
		}
	}
	return ev
}

func (h *Harness) checkExpect(reply protocol.Envelope, exp *ExpectClause) string {
	if reply.Type != exp.Type {
		return fmt.Sprintf("expected reply %s, got %s (%s)", exp.Type, reply.Type, string(reply.Payload))
	}

	if exp.Code != "" {
		var fp protocol.FailurePayload
		if err := reply.Decode(&fp); err != nil {
			return err.Error()
		}
		if fp.Code != exp.Code {
			return fmt.Sprintf("expected code %s, got %s (%s)", exp.Code, fp.Code, fp.Reason)
		}
	}

	if len(exp.Record) > 0 {
		var raw struct {
			Record map[string]any `json:"record"`
		}
		if err := json.Unmarshal(reply.Payload, &raw); err != nil {
			return err.Error()
		}
		expected, err := h.substitute(exp.Record)
		if err != nil {
			return err.Error()
		}
		if diff := matchFields(raw.Record, expected); diff != "" {
			return "record " + diff
		}
	}
	return ""
}

// substitute replaces "$name" strings with bound ids, recursively.
func (h *Harness) substitute(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		resolved, err := h.resolveValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (h *Harness) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return h.resolveRef(val)
	case map[string]any:
		return h.substitute(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := h.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (h *Harness) resolveRef(s string) (string, error) {
	if !strings.HasPrefix(s, "$") {
		return s, nil
	}
	id, ok := h.result.Refs[strings.TrimPrefix(s, "$")]
	if !ok {
		return "", fmt.Errorf("unbound reference %s", s)
	}
	return id, nil
}

func (h *Harness) resolveRefs(list []string) ([]string, error) {
	out := make([]string, len(list))
	for i, s := range list {
		id, err := h.resolveRef(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
