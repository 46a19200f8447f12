package harness

import "github.com/roach88/assemblies/internal/ir"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace is every notification the engine recorded, in sequence order.
	Trace []ir.AssemblyEvent `json:"trace"`

	// Partition is the final assembly layout, one "definition:key,key"
	// entry per assembly, sorted.
	Partition []string `json:"partition"`

	// Errors contains assertion failures. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Ticks is how many engine ticks the run took.
	Ticks int64 `json:"ticks"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []ir.AssemblyEvent{},
		Partition: []string{},
		Errors:    []string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
