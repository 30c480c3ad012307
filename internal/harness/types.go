package harness

// TraceEvent is one envelope delivered to one scenario client.
type TraceEvent struct {
	Client    string `json:"client"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Completed *bool  `json:"completed,omitempty"`
	Code      string `json:"code,omitempty"`
	Records   *int   `json:"records,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace holds every envelope delivered to scenario clients, in
	// delivery order per step and client declaration order within a step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Refs maps $names to the ids they were bound to.
	Refs map[string]string `json:"refs,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Refs:   make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
