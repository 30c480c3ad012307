package reconcile

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/quadrant/internal/protocol"
	"github.com/roach88/quadrant/internal/task"
)

// Reconciler holds the client's flat record list and the latest View.
//
// Thread-safety: All methods are safe for concurrent use. Mutations are
// published one at a time in commit order; listeners run outside the state
// lock, in registration order, and must not call mutating methods.
type Reconciler struct {
	now    func() time.Time
	logger *slog.Logger

	publishMu sync.Mutex // held from commit through fan-out
	mu        sync.Mutex
	records   []task.Task
	view      View
	ready     bool
	listeners map[int]func(View)
	nextID    int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the wall clock used for derived fields.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLogger sets the reconciler logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New creates an empty reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		now:       time.Now,
		logger:    slog.Default(),
		listeners: make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.view = Build(nil, r.now(), r.logger)
	return r
}

// Subscribe registers fn for every republished View and returns a function
// that removes it.
func (r *Reconciler) Subscribe(fn func(View)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// View returns the most recent View.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// Ready reports whether a snapshot (or an explicit empty fallback) has been applied.
func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Records returns a copy of the flat list.
func (r *Reconciler) Records() []task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]task.Task(nil), r.records...)
}

// Reset replaces the flat list with a snapshot.
func (r *Reconciler) Reset(records []task.Task) View {
	return r.mutate(func() {
		r.records = append(make([]task.Task, 0, len(records)), records...)
		r.ready = true
	})
}

// ResetIfNotReady installs an empty list unless a snapshot has already been
// applied. The check and the swap happen under one lock. It reports whether
// the fallback was installed.
func (r *Reconciler) ResetIfNotReady() (View, bool) {
	return r.mutateIf(func() bool {
		if r.ready {
			return false
		}
		r.records = nil
		r.ready = true
		return true
	})
}

// ApplyCreated adds rec at the front of the flat list (newest first).
// A record already present is replaced in place.
func (r *Reconciler) ApplyCreated(rec task.Task) View {
	return r.mutate(func() {
		if i := r.indexOf(rec.ID); i >= 0 {
			r.records[i] = rec
			return
		}
		r.records = append([]task.Task{rec}, r.records...)
	})
}

// ApplyUpdated replaces the entry matching rec.ID. An unknown record is
// added as if created.
func (r *Reconciler) ApplyUpdated(rec task.Task) View {
	return r.mutate(func() {
		if i := r.indexOf(rec.ID); i >= 0 {
			r.records[i] = rec
			return
		}
		r.logger.Debug("update for unknown task, inserting", "id", rec.ID)
		r.records = append([]task.Task{rec}, r.records...)
	})
}

// ApplyDeleted removes the entry matching id. Its children become orphans.
func (r *Reconciler) ApplyDeleted(id string) View {
	return r.mutate(func() {
		if i := r.indexOf(id); i >= 0 {
			r.records = append(r.records[:i], r.records[i+1:]...)
		}
	})
}

// Apply decodes a server envelope and applies it.
// Events that carry no task data return the current View unchanged.
func (r *Reconciler) Apply(env protocol.Envelope) (View, error) {
	switch env.Type {
	case protocol.EventSnapshot:
		var p protocol.SnapshotPayload
		if err := env.Decode(&p); err != nil {
			return r.View(), err
		}
		return r.Reset(p.Records), nil

	case protocol.EventTaskCreated:
		var p protocol.RecordPayload
		if err := env.Decode(&p); err != nil {
			return r.View(), err
		}
		return r.ApplyCreated(p.Record), nil

	case protocol.EventTaskUpdated:
		var p protocol.RecordPayload
		if err := env.Decode(&p); err != nil {
			return r.View(), err
		}
		return r.ApplyUpdated(p.Record), nil

	case protocol.EventTaskDeleted:
		var p protocol.IDPayload
		if err := env.Decode(&p); err != nil {
			return r.View(), err
		}
		if p.ID == "" {
			return r.View(), fmt.Errorf("%s: missing id", env.Type)
		}
		return r.ApplyDeleted(p.ID), nil

	default:
		return r.View(), nil
	}
}

// Refresh re-runs the hierarchy pass so time-dependent fields follow the clock.
func (r *Reconciler) Refresh() View {
	return r.mutate(func() {})
}

func (r *Reconciler) indexOf(id string) int {
	for i, rec := range r.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// mutate applies change under the lock, rebuilds the View and notifies listeners.
func (r *Reconciler) mutate(change func()) View {
	view, _ := r.mutateIf(func() bool {
		change()
		return true
	})
	return view
}

// mutateIf is mutate for changes that may turn out to be no-ops. When change
// returns false nothing is rebuilt or published.
func (r *Reconciler) mutateIf(change func() bool) (View, bool) {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	if !change() {
		view := r.view
		r.mu.Unlock()
		return view, false
	}
	r.view = Build(r.records, r.now(), r.logger)
	view := r.view
	listeners := make([]func(View), 0, len(r.listeners))
	for id := 0; id < r.nextID; id++ {
		if fn, ok := r.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
	return view, true
}
