package harness

import "github.com/roach88/kinspect/internal/engine"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one decoder.Format line per input line, in order.
	Trace []string `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// Stats are the engine counters after the run.
	Stats engine.Stats `json:"stats"`

	// Counts are the row counts of the store tables after the run.
	Counts map[string]int `json:"counts"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
		Counts: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
