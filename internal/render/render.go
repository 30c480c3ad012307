// Package render draws a reconciled view as plain text. It only reads
// reconcile.View values and never mutates them.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/quadrant/internal/reconcile"
	"github.com/roach88/quadrant/internal/task"
)

// quadrantOrder is the display order of the matrix cells.
var quadrantOrder = []struct {
	q     task.Quadrant
	label string
}{
	{task.QuadrantDo, "DO: important & urgent"},
	{task.QuadrantSchedule, "SCHEDULE: important, not urgent"},
	{task.QuadrantDelegate, "DELEGATE: urgent, not important"},
	{task.QuadrantEliminate, "ELIMINATE: neither"},
}

const dateLayout = "2006-01-02"

// Text writes v as a matrix of active tasks followed by completed ones.
func Text(w io.Writer, v reconcile.View) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%d tasks, %d active, %d completed\n", v.Total, len(v.Active), len(v.Completed))

	groups := v.ByQuadrant()
	for _, cell := range quadrantOrder {
		nodes := groups[cell.q]
		fmt.Fprintf(&b, "\n== %s (%d) ==\n", cell.label, len(nodes))
		if len(nodes) == 0 {
			b.WriteString("  (none)\n")
			continue
		}
		for _, n := range nodes {
			writeNode(&b, n)
		}
	}

	fmt.Fprintf(&b, "\n== COMPLETED (%d) ==\n", len(v.Completed))
	if len(v.Completed) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, n := range v.Completed {
		writeNode(&b, n)
	}

	if len(v.Orphans) > 0 {
		fmt.Fprintf(&b, "\norphans: %s\n", strings.Join(v.Orphans, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeNode(b *strings.Builder, n reconcile.Node) {
	b.WriteString("  ")
	b.WriteString(Line(n))
	b.WriteByte('\n')
	for _, c := range n.Children {
		b.WriteString("      - ")
		b.WriteString(Line(c))
		b.WriteByte('\n')
	}
}

// Line renders one node without indentation.
func Line(n reconcile.Node) string {
	var b strings.Builder
	if n.Completed {
		b.WriteString("[x] ")
	} else {
		b.WriteString("[ ] ")
	}
	fmt.Fprintf(&b, "%s  score=%.1f", n.Title, n.PriorityScore)
	if n.DueDate != nil {
		fmt.Fprintf(&b, " due=%s", n.DueDate.UTC().Format(dateLayout))
	}
	if n.IsOverdue {
		b.WriteString(" OVERDUE")
	}
	if n.Completed && n.CompletedAt != nil {
		fmt.Fprintf(&b, " done=%s", n.CompletedAt.UTC().Format(dateLayout))
	}
	fmt.Fprintf(&b, "  #%s", n.ID)
	return b.String()
}
