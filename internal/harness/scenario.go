package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quadrant/internal/protocol"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// OwnerScoped enables per-owner snapshots and broadcasts.
	OwnerScoped bool `yaml:"owner_scoped,omitempty"`

	// Clients are connected in order before the flow starts.
	Clients []ClientSpec `yaml:"clients"`

	// Legacy records are imported into the store before clients connect.
	Legacy []LegacySpec `yaml:"legacy,omitempty"`

	// Flow is the ordered list of inbound events.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate what clients received and how they reconciled it.
	Assertions []Assertion `yaml:"assertions"`
}

// ClientSpec declares one connected client.
type ClientSpec struct {
	Name  string `yaml:"name"`
	Owner string `yaml:"owner,omitempty"` // defaults to "local"
}

// LegacySpec is one record migrated from the prior storage system.
type LegacySpec struct {
	// As binds the new canonical id to $As.
	As         string  `yaml:"as,omitempty"`
	LegacyID   string  `yaml:"legacy_id"`
	Title      string  `yaml:"title"`
	Importance float64 `yaml:"importance,omitempty"`
	Urgency    float64 `yaml:"urgency,omitempty"`
	ParentRef  string  `yaml:"parent_ref,omitempty"`
	Owner      string  `yaml:"owner,omitempty"`
	Completed  bool    `yaml:"completed,omitempty"`
}

// FlowStep sends one inbound event from one client.
type FlowStep struct {
	// Client is the sending client's name.
	Client string `yaml:"client"`

	// Send is the inbound event name, e.g. "create-task".
	Send string `yaml:"send"`

	// Payload is sent as JSON after $ref substitution.
	Payload map[string]any `yaml:"payload"`

	// As binds the id of the returned record to $As.
	As string `yaml:"as,omitempty"`

	// Advance moves the fake clock forward before the step runs.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Expect checks the reply delivered to the sender.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected reply.
type ExpectClause struct {
	// Type is the expected reply event, e.g. "task-created" or "operation-failed".
	Type string `yaml:"type"`

	// Code is the expected failure code (operation-failed only).
	Code string `yaml:"code,omitempty"`

	// Record is a subset match on the returned record.
	Record map[string]any `yaml:"record,omitempty"`
}

// Assertion validates final client state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Client names the client the assertion inspects.
	Client string `yaml:"client"`

	// Events is the expected sequence of received event names (received).
	Events []string `yaml:"events,omitempty"`

	// Roots, Active, Completed and Orphans are expected id lists (view).
	Roots     []string `yaml:"roots,omitempty"`
	Active    []string `yaml:"active,omitempty"`
	Completed []string `yaml:"completed,omitempty"`
	Orphans   []string `yaml:"orphans,omitempty"`

	// Children maps a root id to its expected child ids (view).
	Children map[string][]string `yaml:"children,omitempty"`

	// Ref and Expect select a node and subset-match it (node).
	Ref    string         `yaml:"ref,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent lists ids that must not be in the view (view).
	Absent []string `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertReceived = "received"
	AssertView     = "view"
	AssertNode     = "node"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and consistent.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Clients) == 0 {
		return fmt.Errorf("clients list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	clients := make(map[string]bool, len(s.Clients))
	for i, c := range s.Clients {
		if c.Name == "" {
			return fmt.Errorf("clients[%d]: name is required", i)
		}
		if clients[c.Name] {
			return fmt.Errorf("clients[%d]: duplicate name %q", i, c.Name)
		}
		clients[c.Name] = true
	}

	for i, l := range s.Legacy {
		if l.LegacyID == "" {
			return fmt.Errorf("legacy[%d]: legacy_id is required", i)
		}
		if l.Title == "" {
			return fmt.Errorf("legacy[%d]: title is required", i)
		}
	}

	for i, step := range s.Flow {
		if !clients[step.Client] {
			return fmt.Errorf("flow[%d]: unknown client %q", i, step.Client)
		}
		if step.Send == "" {
			return fmt.Errorf("flow[%d]: send is required", i)
		}
		if step.Expect != nil && step.Expect.Type == "" {
			return fmt.Errorf("flow[%d].expect: type is required", i)
		}
		if step.Expect != nil && step.Expect.Code != "" && step.Expect.Type != protocol.EventOperationFailed {
			return fmt.Errorf("flow[%d].expect: code only applies to %s", i, protocol.EventOperationFailed)
		}
	}

	for i, a := range s.Assertions {
		if !clients[a.Client] {
			return fmt.Errorf("assertions[%d]: unknown client %q", i, a.Client)
		}
		switch a.Type {
		case AssertReceived:
			if len(a.Events) == 0 {
				return fmt.Errorf("assertions[%d]: events list is required for received", i)
			}
		case AssertView:
		case AssertNode:
			if a.Ref == "" || len(a.Expect) == 0 {
				return fmt.Errorf("assertions[%d]: ref and expect are required for node", i)
			}
		case "":
			return fmt.Errorf("assertions[%d]: type is required", i)
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}

	return nil
}
