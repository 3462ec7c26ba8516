package harness

import "github.com/roach88/campuscloset/internal/ir"

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
	EventEffect     = "effect"
)

// Outcome values of completion and effect events.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// TraceEvent is one entry in a scenario trace: a dispatched invocation,
// its completion, or a sync effect it caused.
type TraceEvent struct {
	Type      string      `json:"type"`
	ActionURI string      `json:"action_uri"`
	Rule      string      `json:"rule,omitempty"`    // effect only
	Args      ir.IRObject `json:"args,omitempty"`    // invocation and effect
	Outcome   string      `json:"outcome,omitempty"` // completion and effect
	Result    ir.IRObject `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Seq       int64       `json:"seq"`
}

// Calls reports whether the event is an action being run, either a
// dispatched invocation or a sync effect.
func (e TraceEvent) Calls() bool {
	return e.Type == EventInvocation || e.Type == EventEffect
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds invocations, completions and effects in the order they
	// happened.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Captures holds the values bound by capture clauses.
	Captures map[string]ir.IRValue `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Captures: make(map[string]ir.IRValue),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
