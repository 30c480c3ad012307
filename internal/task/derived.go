package task

import "time"

// PriorityScore is importance * urgency / 10, in [0, 10] for valid inputs.
func PriorityScore(importance, urgency float64) float64 {
	return importance * urgency / 10
}

// IsOverdue reports whether t has a due date before now and is not completed.
func IsOverdue(t Task, now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && !t.Completed
}

// Quadrant is the Eisenhower matrix cell a task falls into.
type Quadrant string

const (
	QuadrantDo        Quadrant = "do"
	QuadrantSchedule  Quadrant = "schedule"
	QuadrantDelegate  Quadrant = "delegate"
	QuadrantEliminate Quadrant = "eliminate"
)

// quadrantThreshold splits each axis at its midpoint.
const quadrantThreshold = 5

// QuadrantOf classifies a pair of scores.
func QuadrantOf(importance, urgency float64) Quadrant {
	important := importance >= quadrantThreshold
	urgent := urgency >= quadrantThreshold
	switch {
	case important && urgent:
		return QuadrantDo
	case important:
		return QuadrantSchedule
	case urgent:
		return QuadrantDelegate
	default:
		return QuadrantEliminate
	}
}
