package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quadrant/internal/protocol"
	"github.com/roach88/quadrant/internal/testutil"
)

func messageEvent(p Peer, requestID string) Event {
	return Event{
		Type:    EventTypeMessage,
		Peer:    p,
		Message: protocol.Envelope{Type: protocol.EventRequestSnapshot, RequestID: requestID},
	}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	p := testutil.NewRecordingPeer("p1", "local")

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(messageEvent(p, id)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, e.Message.RequestID)
		assert.Equal(t, "p1", e.Peer.ID())
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(Event{Type: EventTypeConnect})
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait did not fire after Enqueue")
	}
	e, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, EventTypeConnect, e.Type)
}

func TestEventQueue_CloseRejectsAndDrains(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(Event{Type: EventTypeDisconnect})
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(Event{Type: EventTypeConnect}))
	assert.False(t, q.Drained(), "pending events survive Close")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())

	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait channel should be closed")
	}
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := newEventQueue()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := testutil.NewRecordingPeer(fmt.Sprintf("p%d", n), "local")
			for j := 0; j < perProducer; j++ {
				q.Enqueue(messageEvent(p, fmt.Sprintf("%d", j)))
			}
		}(i)
	}
	wg.Wait()

	// Each producer's events come out in its own order.
	next := make(map[string]int)
	for {
		e, ok := q.TryDequeue()
		if !ok {
			break
		}
		id := e.Peer.ID()
		assert.Equal(t, fmt.Sprintf("%d", next[id]), e.Message.RequestID)
		next[id]++
	}
	assert.Len(t, next, producers)
	for _, n := range next {
		assert.Equal(t, perProducer, n)
	}
}
