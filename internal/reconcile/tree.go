package reconcile

import (
	"log/slog"
	"time"

	"github.com/roach88/quadrant/internal/task"
)

// Node is one rendered task with its derived fields.
type Node struct {
	task.Task

	// ParentRef on the embedded Task holds the resolved canonical id.
	// RawParentRef is what the record carried on the wire.
	RawParentRef string `json:"rawParentRef,omitempty"`

	PriorityScore float64       `json:"priorityScore"`
	IsOverdue     bool          `json:"isOverdue"`
	Quadrant      task.Quadrant `json:"quadrant"`

	// Orphan is set when RawParentRef named no known record.
	Orphan bool `json:"orphan,omitempty"`

	Children []Node `json:"children"`
}

// View is the result of one hierarchy pass.
type View struct {
	// Roots holds every root in flat-list order, children nested.
	Roots []Node `json:"roots"`

	// Active and Completed partition Roots by completion.
	Active    []Node `json:"active"`
	Completed []Node `json:"completed"`

	// Orphans lists ids whose parent reference could not be resolved.
	Orphans []string `json:"orphans,omitempty"`

	// Total counts every record, roots and children.
	Total int `json:"total"`

	ReconciledAt time.Time `json:"reconciledAt"`
}

// Build runs the id resolution and hierarchy passes over records.
// records must be in display order (newest first).
func Build(records []task.Task, now time.Time, logger *slog.Logger) View {
	if logger == nil {
		logger = slog.Default()
	}

	canonical := make(map[string]bool, len(records))
	legacy := make(map[string]string)
	for _, r := range records {
		canonical[r.ID] = true
		if r.LegacyID != "" {
			legacy[r.LegacyID] = r.ID
		}
	}

	// resolved[id] is the canonical parent id, or "" for roots.
	resolved := make(map[string]string, len(records))
	var orphans []string
	orphan := make(map[string]bool)
	for _, r := range records {
		ref := r.ParentRef
		if ref == "" {
			continue
		}
		parent, ok := resolveRef(ref, canonical, legacy)
		switch {
		case !ok:
			logger.Warn("unresolved parent reference, treating task as root",
				"id", r.ID, "parent_ref", ref)
			orphans = append(orphans, r.ID)
			orphan[r.ID] = true
		case parent == r.ID:
			logger.Warn("task references itself as parent, treating task as root", "id", r.ID)
		default:
			resolved[r.ID] = parent
		}
	}

	// A child must point at a root; deeper chains are promoted.
	isRoot := func(id string) bool { return resolved[id] == "" }

	children := make(map[string][]Node)
	var rootOrder []task.Task
	for _, r := range records {
		parent := resolved[r.ID]
		if parent != "" && isRoot(parent) {
			children[parent] = append(children[parent], derive(r, parent, false, now))
			continue
		}
		if parent != "" {
			logger.Warn("parent is itself a subtask, treating task as root",
				"id", r.ID, "parent_ref", r.ParentRef, "resolved_parent", parent)
		}
		rootOrder = append(rootOrder, r)
	}

	v := View{
		Roots:        make([]Node, 0, len(rootOrder)),
		Active:       []Node{},
		Completed:    []Node{},
		Orphans:      orphans,
		Total:        len(records),
		ReconciledAt: now,
	}
	for _, r := range rootOrder {
		n := derive(r, "", orphan[r.ID], now)
		n.Children = children[r.ID]
		if n.Children == nil {
			n.Children = []Node{}
		}
		v.Roots = append(v.Roots, n)
		if n.Completed {
			v.Completed = append(v.Completed, n)
		} else {
			v.Active = append(v.Active, n)
		}
	}
	return v
}

// resolveRef maps a reference onto a canonical id, preferring canonical ids
// over legacy ids.
func resolveRef(ref string, canonical map[string]bool, legacy map[string]string) (string, bool) {
	if canonical[ref] {
		return ref, true
	}
	if id, ok := legacy[ref]; ok {
		return id, true
	}
	return "", false
}

// derive computes the wire-independent fields of one record.
func derive(r task.Task, parent string, orphan bool, now time.Time) Node {
	n := Node{
		Task:          r,
		RawParentRef:  r.ParentRef,
		PriorityScore: task.PriorityScore(r.Importance, r.Urgency),
		IsOverdue:     task.IsOverdue(r, now),
		Quadrant:      task.QuadrantOf(r.Importance, r.Urgency),
		Orphan:        orphan,
	}
	n.ParentRef = parent

	// completedAt only means something for completed records.
	if !n.Completed {
		n.CompletedAt = nil
	} else if n.CompletedAt == nil {
		at := n.UpdatedAt
		n.CompletedAt = &at
	}
	return n
}

// Find returns the node with id, searching children too.
func (v View) Find(id string) (Node, bool) {
	for _, root := range v.Roots {
		if root.ID == id {
			return root, true
		}
		for _, child := range root.Children {
			if child.ID == id {
				return child, true
			}
		}
	}
	return Node{}, false
}

// ByQuadrant groups active roots by Eisenhower quadrant, keeping order.
func (v View) ByQuadrant() map[task.Quadrant][]Node {
	out := map[task.Quadrant][]Node{
		task.QuadrantDo:        {},
		task.QuadrantSchedule:  {},
		task.QuadrantDelegate:  {},
		task.QuadrantEliminate: {},
	}
	for _, n := range v.Active {
		out[n.Quadrant] = append(out[n.Quadrant], n)
	}
	return out
}
