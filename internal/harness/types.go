package harness

// TraceEvent records the outcome of one flow step.
// Counts are zero and omitted for steps they do not apply to.
type TraceEvent struct {
	Seq       int      `json:"seq"`
	Action    string   `json:"action"`
	Plan      string   `json:"plan,omitempty"`
	Lot       string   `json:"lot,omitempty"`
	ID        string   `json:"id,omitempty"`
	Skipped   string   `json:"skipped,omitempty"`
	Error     string   `json:"error,omitempty"`
	Batched   int      `json:"batched,omitempty"`
	Processed int      `json:"processed,omitempty"`
	Confirmed int      `json:"confirmed,omitempty"`
	CleanedUp int      `json:"cleaned_up,omitempty"`
	Refreshed []string `json:"refreshed,omitempty"`
	Queued    int      `json:"queued"` // Queue depth after the step
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step's event to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
