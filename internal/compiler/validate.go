package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/campuscloset/internal/ir"
)

// Diagnostic codes.
const (
	ErrInvalidActionRef = "E110" // malformed or unknown action reference
	ErrEmptyThen        = "E113" // rule has no effects
	ErrUnknownRefRoot   = "E114" // template reference root is not params or result
	ErrRouteOverlap     = "E120" // route both included and excluded
	ErrInvalidRoute     = "E121" // malformed or unknown route

	WarnDuplicateRule = "W201" // two rules share a name
	WarnCycle         = "W202" // rules can trigger each other
	WarnUnclassified  = "W203" // action in neither route list
)

// Severity levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Diagnostic is one problem found in a rule set.
type Diagnostic struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", d.Code, d.Line, d.Field, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Code, d.Field, d.Message)
}

// Validate checks a rule set. Returns all problems found (does not
// fail-fast), errors before warnings.
//
// When actions is non-nil it is the set of "Concept.action" refs that
// exist; rules and routes naming anything else are errors, and existing
// actions in neither route list are warnings.
func Validate(rs *RuleSet, actions []string) []Diagnostic {
	v := &validator{}
	var known map[string]bool
	if actions != nil {
		known = make(map[string]bool, len(actions))
		for _, a := range actions {
			known[a] = true
		}
	}

	seen := map[string]bool{}
	for i, r := range rs.Rules {
		field := fmt.Sprintf("sync.%s", r.Name)
		line := r.Pos.Line()

		if seen[r.Name] {
			v.warn(WarnDuplicateRule, field, line, fmt.Sprintf("rule name %q is used more than once (rule %d)", r.Name, i))
		}
		seen[r.Name] = true

		v.actionRef(field+".when.action", line, r.When, known)

		if len(r.Then) == 0 {
			v.err(ErrEmptyThen, field+".then", line, "at least one effect is required")
		}
		for j, e := range r.Then {
			efield := fmt.Sprintf("%s.then[%d]", field, j)
			eline := e.Pos.Line()
			v.actionRef(efield+".action", eline, e.Action, known)
			for _, ref := range References(e.Args) {
				if _, _, ok := reference(ref); !ok {
					v.err(ErrUnknownRefRoot, efield+".args", eline,
						fmt.Sprintf("reference %q must start with %s. or %s.", ref, RootParams, RootResult))
				}
			}
		}
	}

	v.routes(rs, known)

	for _, w := range AnalyzeCycles(rs.Rules) {
		v.warn(WarnCycle, "sync", 0, w.Message)
	}

	sort.SliceStable(v.out, func(i, j int) bool {
		return v.out[i].Level == LevelError && v.out[j].Level != LevelError
	})
	return v.out
}

type validator struct {
	out []Diagnostic
}

func (v *validator) err(code, field string, line int, msg string) {
	v.out = append(v.out, Diagnostic{Level: LevelError, Code: code, Field: field, Message: msg, Line: line})
}

func (v *validator) warn(code, field string, line int, msg string) {
	v.out = append(v.out, Diagnostic{Level: LevelWarning, Code: code, Field: field, Message: msg, Line: line})
}

func (v *validator) actionRef(field string, line int, ref string, known map[string]bool) {
	if _, _, err := ir.ParseActionRef(ref); err != nil {
		v.err(ErrInvalidActionRef, field, line, fmt.Sprintf("invalid action reference %q, want Concept.action", ref))
		return
	}
	if known != nil && !known[ref] {
		v.err(ErrInvalidActionRef, field, line, fmt.Sprintf("unknown action %q", ref))
	}
}

func (v *validator) routes(rs *RuleSet, known map[string]bool) {
	included := map[string]bool{}
	for _, r := range rs.Included {
		v.route("routes.included", r, known)
		included[r] = true
	}
	excluded := map[string]bool{}
	for _, r := range rs.Excluded {
		v.route("routes.excluded", r, known)
		excluded[r] = true
		if included[r] {
			v.err(ErrRouteOverlap, "routes", 0, fmt.Sprintf("route %q is both included and excluded", r))
		}
	}

	if known == nil {
		return
	}
	var unclassified []string
	for a := range known {
		if !included[a] && !excluded[a] {
			unclassified = append(unclassified, a)
		}
	}
	sort.Strings(unclassified)
	for _, a := range unclassified {
		v.warn(WarnUnclassified, "routes", 0, fmt.Sprintf("action %q is neither included nor excluded", a))
	}
}

func (v *validator) route(field, ref string, known map[string]bool) {
	if _, _, err := ir.ParseActionRef(ref); err != nil {
		v.err(ErrInvalidRoute, field, 0, fmt.Sprintf("invalid route %q, want Concept.action", ref))
		return
	}
	if known != nil && !known[ref] {
		v.err(ErrInvalidRoute, field, 0, fmt.Sprintf("unknown action %q", ref))
	}
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}
