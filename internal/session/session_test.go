package session

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quadrant/internal/channel"
	"github.com/roach88/quadrant/internal/engine"
	"github.com/roach88/quadrant/internal/protocol"
	"github.com/roach88/quadrant/internal/reconcile"
	"github.com/roach88/quadrant/internal/store"
	"github.com/roach88/quadrant/internal/task"
	"github.com/roach88/quadrant/internal/testutil"
)

var testEpoch = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport answers requests from a script and mirrors replies to the
// subscriber first, like channel.Client.
type fakeTransport struct {
	mu      sync.Mutex
	sub     channel.Subscriber
	replies map[string]protocol.Envelope
	sent    []string
}

func (f *fakeTransport) Subscribe(s channel.Subscriber) { f.sub = s }

func (f *fakeTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeTransport) Request(_ context.Context, eventType string, _ any) (protocol.Envelope, error) {
	f.mu.Lock()
	f.sent = append(f.sent, eventType)
	reply, ok := f.replies[eventType]
	f.mu.Unlock()
	if !ok {
		return protocol.Envelope{}, channel.ErrRequestTimeout
	}
	f.sub.HandleEnvelope(reply)
	if reply.Type == protocol.EventOperationFailed {
		var fp protocol.FailurePayload
		_ = reply.Decode(&fp)
		return reply, &channel.FailedError{Code: fp.Code, Reason: fp.Reason, Event: fp.OriginalEvent}
	}
	return reply, nil
}

func newFakeSession(t *testing.T, replies map[string]protocol.Envelope) (*Session, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{replies: replies}
	r := reconcile.New(reconcile.WithClock(testutil.NewFakeClock(testEpoch).Now), reconcile.WithLogger(discardLogger()))
	return New(ft, r, WithSnapshotTimeout(30*time.Millisecond), WithLogger(discardLogger())), ft
}

func TestWaitForSnapshot_FallsBackToEmptyList(t *testing.T) {
	s, _ := newFakeSession(t, nil)

	start := time.Now()
	v := s.WaitForSnapshot(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, v.Total)
	assert.True(t, s.Reconciler().Ready())

	// a late snapshot still lands
	s.HandleEnvelope(protocol.MustNew(protocol.EventSnapshot, protocol.SnapshotPayload{
		Records: []task.Task{{ID: "late", Title: "late", Importance: 5, Urgency: 5}},
	}))
	assert.Equal(t, 1, s.Reconciler().View().Total)
}

// gatedTransport delivers a snapshot from its read loop once gate closes.
type gatedTransport struct {
	fakeTransport
	gate     chan struct{}
	snapshot protocol.Envelope
}

func (g *gatedTransport) Run(ctx context.Context) error {
	select {
	case <-g.gate:
		g.sub.HandleEnvelope(g.snapshot)
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWaitForSnapshot_FallbackNeverWipesConcurrentSnapshot(t *testing.T) {
	snapshot := protocol.MustNew(protocol.EventSnapshot, protocol.SnapshotPayload{
		Records: []task.Task{{ID: "a", Title: "a", Importance: 5, Urgency: 5}},
	})

	for i := 0; i < 50; i++ {
		gt := &gatedTransport{gate: make(chan struct{}), snapshot: snapshot}
		r := reconcile.New(reconcile.WithClock(testutil.NewFakeClock(testEpoch).Now), reconcile.WithLogger(discardLogger()))
		s := New(gt, r, WithSnapshotTimeout(2*time.Millisecond), WithLogger(discardLogger()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Run(ctx)
		}()
		// open the gate around the moment the fallback timer fires
		time.AfterFunc(2*time.Millisecond, func() { close(gt.gate) })

		s.WaitForSnapshot(context.Background())
		require.Eventually(t, func() bool { return s.Reconciler().View().Total == 1 },
			time.Second, time.Millisecond, "iteration %d: snapshot lost to the empty fallback", i)

		cancel()
		<-done
	}
}

func TestWaitForSnapshot_ReturnsOnSnapshot(t *testing.T) {
	s, _ := newFakeSession(t, nil)
	s.snapshotTimeout = time.Hour

	go s.HandleEnvelope(protocol.MustNew(protocol.EventSnapshot, protocol.SnapshotPayload{
		Records: []task.Task{{ID: "a", Title: "a", Importance: 5, Urgency: 5}},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v := s.WaitForSnapshot(ctx)
	assert.Equal(t, 1, v.Total)
}

func TestFailuresAreNotifiedAndListKeepsState(t *testing.T) {
	failure := protocol.MustNew(protocol.EventOperationFailed, protocol.FailurePayload{
		Code: "NOT_FOUND", Reason: "task x does not exist", OriginalEvent: protocol.EventDeleteTask,
	})
	s, _ := newFakeSession(t, map[string]protocol.Envelope{protocol.EventDeleteTask: failure})
	s.Reconciler().Reset([]task.Task{{ID: "keep", Title: "keep", Importance: 5, Urgency: 5}})

	var got []Failure
	s.OnFailure(func(f Failure) { got = append(got, f) })

	err := s.DeleteTask(context.Background(), "x")
	var fe *channel.FailedError
	require.ErrorAs(t, err, &fe)

	require.Len(t, got, 1)
	assert.Equal(t, protocol.EventDeleteTask, got[0].Event)
	assert.Equal(t, "delete-task failed: task x does not exist", got[0].String())
	assert.Equal(t, 1, s.Reconciler().View().Total)
}

func TestStateChangesAreForwarded(t *testing.T) {
	s, _ := newFakeSession(t, nil)

	var states []channel.ConnState
	s.OnStateChange(func(st channel.ConnState) { states = append(states, st) })
	s.HandleState(channel.StateConnected)
	s.HandleState(channel.StateDisconnected)

	assert.Equal(t, []channel.ConnState{channel.StateConnected, channel.StateDisconnected}, states)
}

// startStack runs store, engine and WebSocket handler and returns a ws URL.
func startStack(t *testing.T) string {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	e := engine.New(st, engine.WithLogger(discardLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	srv := httptest.NewServer(channel.NewHandler(e, channel.WithHandlerLogger(discardLogger())))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startSession(t *testing.T, url string) *Session {
	t.Helper()
	c := channel.NewClient(channel.ClientConfig{
		URL:            url,
		RequestTimeout: 2 * time.Second,
		Logger:         discardLogger(),
	})
	s := New(c, reconcile.New(reconcile.WithLogger(discardLogger())),
		WithSnapshotTimeout(2*time.Second), WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	s.WaitForSnapshot(context.Background())
	require.True(t, s.Reconciler().Ready())
	return s
}

func TestEndToEnd_PayRentScenario(t *testing.T) {
	url := startStack(t)
	alice := startSession(t, url)
	bob := startSession(t, url)

	created, err := alice.CreateTask(context.Background(), task.CreateInput{
		Title:      "Pay rent",
		Importance: ptr(9.0),
		Urgency:    ptr(10.0),
	})
	require.NoError(t, err)

	node, ok := alice.Reconciler().View().Find(created.ID)
	require.True(t, ok, "originator's view includes the record as soon as the request resolves")
	assert.InDelta(t, 9.0, node.PriorityScore, 1e-9)
	assert.False(t, node.Completed)
	assert.False(t, node.IsOverdue)

	toggled, err := alice.ToggleCompletion(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	require.NotNil(t, toggled.CompletedAt)
	assert.False(t, toggled.CompletedAt.Before(created.CreatedAt))

	require.Eventually(t, func() bool {
		n, ok := bob.Reconciler().View().Find(created.ID)
		return ok && n.Completed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEndToEnd_DeletePromotesChildrenEverywhere(t *testing.T) {
	url := startStack(t)
	alice := startSession(t, url)
	bob := startSession(t, url)
	ctx := context.Background()

	parent, err := alice.CreateTask(ctx, task.CreateInput{Title: "parent"})
	require.NoError(t, err)
	child, err := alice.CreateSubtask(ctx, parent.ID, task.CreateInput{Title: "child"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bob.Reconciler().View().Total == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, alice.DeleteTask(ctx, parent.ID))

	for _, s := range []*Session{alice, bob} {
		require.Eventually(t, func() bool {
			v := s.Reconciler().View()
			_, stillThere := v.Find(parent.ID)
			return !stillThere && len(v.Roots) == 1 && v.Roots[0].ID == child.ID
		}, 2*time.Second, 5*time.Millisecond)
	}
}

func TestEndToEnd_CreateThenSnapshot(t *testing.T) {
	url := startStack(t)
	s := startSession(t, url)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, task.CreateInput{Title: "defaults"})
	require.NoError(t, err)

	v, err := s.RequestSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v.Total)
	n := v.Roots[0]
	assert.Equal(t, created.ID, n.ID)
	assert.Equal(t, 5.0, n.Importance)
	assert.Equal(t, 5.0, n.Urgency)
	assert.False(t, n.Completed)

	_, err = s.UpdateTask(ctx, created.ID, task.PatchInput{Title: ptr("renamed")})
	require.NoError(t, err)
	n, _ = s.Reconciler().View().Find(created.ID)
	assert.Equal(t, "renamed", n.Title)
}

func ptr[T any](v T) *T { return &v }
