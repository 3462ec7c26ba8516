package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/campuscloset/internal/ir"
)

// Mapper computes an effect's params from the triggering action's params
// and result. Mappers must be pure: no I/O, no shared state.
type Mapper func(params, result ir.IRObject) (ir.IRObject, error)

// Trigger names the action whose success fires a rule.
type Trigger struct {
	Concept string `json:"concept"`
	Action  string `json:"action"`
}

// Ref returns the trigger as an action reference.
func (t Trigger) Ref() ir.ActionRef { return ir.NewActionRef(t.Concept, t.Action) }

// Effect is one follow-up invocation a rule performs.
type Effect struct {
	Concept string `json:"concept"`
	Action  string `json:"action"`
	Map     Mapper `json:"-"`
}

// Ref returns the effect target as an action reference.
func (e Effect) Ref() ir.ActionRef { return ir.NewActionRef(e.Concept, e.Action) }

// SyncRule declares: when Trigger succeeds, run Includes in order.
type SyncRule struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Trigger     Trigger  `json:"trigger"`
	Includes    []Effect `json:"includes"`
}

// RuleTable is the ordered, immutable list of sync rules.
//
// INVARIANTS:
//   - rule order never changes after construction
//   - lookups return rules in declaration order
type RuleTable struct {
	rules     []SyncRule
	byTrigger map[string][]int
}

// NewRuleTable validates and copies rules, preserving their order.
// Several rules may share a trigger or a name.
func NewRuleTable(rules []SyncRule) (*RuleTable, error) {
	t := &RuleTable{
		rules:     make([]SyncRule, len(rules)),
		byTrigger: make(map[string][]int),
	}

	var errs []error
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			errs = append(errs, fmt.Errorf("rule[%d] %q: %w", i, r.Name, err))
			continue
		}
		cp := r
		cp.Includes = append([]Effect(nil), r.Includes...)
		t.rules[i] = cp

		key := string(r.Trigger.Ref())
		t.byTrigger[key] = append(t.byTrigger[key], i)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// MustRuleTable is like NewRuleTable but panics on error.
func MustRuleTable(rules []SyncRule) *RuleTable {
	t, err := NewRuleTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}

func validateRule(r SyncRule) error {
	if r.Trigger.Concept == "" || r.Trigger.Action == "" {
		return errors.New("trigger concept and action are required")
	}
	if len(r.Includes) == 0 {
		return errors.New("at least one effect is required")
	}
	for j, e := range r.Includes {
		if e.Concept == "" || e.Action == "" {
			return fmt.Errorf("includes[%d]: concept and action are required", j)
		}
		if e.Map == nil {
			return fmt.Errorf("includes[%d]: mapper is required", j)
		}
	}
	return nil
}

// FindTriggered returns every rule triggered by concept.action, in
// declaration order. Returns nil when none match.
func (t *RuleTable) FindTriggered(concept, action string) []SyncRule {
	if t == nil {
		return nil
	}
	idxs := t.byTrigger[string(ir.NewActionRef(concept, action))]
	if len(idxs) == 0 {
		return nil
	}
	out := make([]SyncRule, len(idxs))
	for i, idx := range idxs {
		out[i] = t.rules[idx]
	}
	return out
}

// ShouldSync reports whether any rule is triggered by concept.action.
func (t *RuleTable) ShouldSync(concept, action string) bool {
	if t == nil {
		return false
	}
	return len(t.byTrigger[string(ir.NewActionRef(concept, action))]) > 0
}

// Rules returns a copy of all rules in declaration order.
func (t *RuleTable) Rules() []SyncRule {
	if t == nil {
		return nil
	}
	return append([]SyncRule(nil), t.rules...)
}

// Len returns the number of rules.
func (t *RuleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}
