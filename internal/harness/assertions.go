package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/quadrant/internal/reconcile"
)

// Present matches any non-null value in expect maps.
const Present = "*"

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Client   string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (client %s)\n", e.Type, e.Client)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the harness state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		c, ok := h.clients[assertion.Client]
		if !ok {
			errs = append(errs, fmt.Sprintf("assertion[%d]: unknown client %q", i, assertion.Client))
			continue
		}

		var err error
		switch assertion.Type {
		case AssertReceived:
			err = assertReceived(c, assertion)
		case AssertView:
			err = h.assertView(c, assertion)
		case AssertNode:
			err = h.assertNode(c, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// assertReceived checks the exact sequence of event names a client received.
func assertReceived(c *client, a Assertion) error {
	got := c.peer.Types()
	if reflect.DeepEqual(got, a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertReceived,
		Client:   c.spec.Name,
		Expected: strings.Join(a.Events, ", "),
		Actual:   strings.Join(got, ", "),
	}
}

// assertView checks the id lists of a client's reconciled view.
// Only the lists an assertion names are compared.
func (h *Harness) assertView(c *client, a Assertion) error {
	v := c.rec.View()

	checks := []struct {
		name     string
		expected []string
		actual   []reconcile.Node
	}{
		{"roots", a.Roots, v.Roots},
		{"active", a.Active, v.Active},
		{"completed", a.Completed, v.Completed},
	}
	for _, chk := range checks {
		if chk.expected == nil {
			continue
		}
		if err := h.compareIDs(c, "view."+chk.name, chk.expected, ids(chk.actual)); err != nil {
			return err
		}
	}

	if a.Orphans != nil {
		if err := h.compareIDs(c, "view.orphans", a.Orphans, v.Orphans); err != nil {
			return err
		}
	}

	parents := make([]string, 0, len(a.Children))
	for p := range a.Children {
		parents = append(parents, p)
	}
	sort.Strings(parents)
	for _, p := range parents {
		parentID, err := h.resolveRef(p)
		if err != nil {
			return err
		}
		node, ok := v.Find(parentID)
		if !ok {
			return &AssertionError{Type: AssertView, Client: c.spec.Name,
				Expected: fmt.Sprintf("node %s present", p), Actual: "absent"}
		}
		if err := h.compareIDs(c, "view.children["+p+"]", a.Children[p], ids(node.Children)); err != nil {
			return err
		}
	}

	for _, ref := range a.Absent {
		id, err := h.resolveRef(ref)
		if err != nil {
			return err
		}
		if _, found := v.Find(id); found {
			return &AssertionError{Type: AssertView, Client: c.spec.Name,
				Expected: fmt.Sprintf("%s absent", ref), Actual: "present"}
		}
	}
	return nil
}

func (h *Harness) compareIDs(c *client, what string, expected, actual []string) error {
	want, err := h.resolveRefs(expected)
	if err != nil {
		return err
	}
	if len(want) == 0 && len(actual) == 0 {
		return nil
	}
	if reflect.DeepEqual(want, actual) {
		return nil
	}
	return &AssertionError{
		Type:     what,
		Client:   c.spec.Name,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", actual),
	}
}

// assertNode subset-matches one node of a client's view, derived fields included.
func (h *Harness) assertNode(c *client, a Assertion) error {
	id, err := h.resolveRef(a.Ref)
	if err != nil {
		return err
	}
	node, ok := c.rec.View().Find(id)
	if !ok {
		return &AssertionError{Type: AssertNode, Client: c.spec.Name,
			Expected: fmt.Sprintf("node %s present", a.Ref), Actual: "absent"}
	}

	actual, err := flattenNode(node)
	if err != nil {
		return err
	}
	expected, err := h.substitute(a.Expect)
	if err != nil {
		return err
	}
	if diff := matchFields(actual, expected); diff != "" {
		return &AssertionError{Type: AssertNode, Client: c.spec.Name, Expected: a.Ref, Actual: diff}
	}
	return nil
}

// flattenNode renders a node as the map assertions match against.
// children is replaced by the child count.
func flattenNode(n reconcile.Node) (map[string]any, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	out["orphan"] = n.Orphan
	out["children"] = len(n.Children)
	return out, nil
}

func ids(nodes []reconcile.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// matchFields checks that actual contains every expected key (subset match).
// Returns a description of the first mismatch, or "".
func matchFields(actual, expected map[string]any) string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := expected[key]
		got, exists := actual[key]
		if !valuesEqual(got, exists, want) {
			if !exists {
				return fmt.Sprintf("%s: expected %v, missing", key, want)
			}
			return fmt.Sprintf("%s: expected %v, got %v", key, want, got)
		}
	}
	return ""
}

// valuesEqual compares a decoded JSON value with a YAML expectation.
// A nil expectation matches a missing or null value; Present matches any
// non-null value; numbers compare as float64.
func valuesEqual(actual any, exists bool, expected any) bool {
	if expected == nil {
		return !exists || actual == nil
	}
	if s, ok := expected.(string); ok && s == Present {
		return exists && actual != nil
	}
	if !exists {
		return false
	}

	if ef, ok := toFloat(expected); ok {
		af, ok := toFloat(actual)
		return ok && ef == af
	}
	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
