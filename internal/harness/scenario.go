package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a conformance scenario: a flow of dispatched actions with
// expectations, followed by assertions over the trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is an optional rule file replacing the built-in rules.
	// Relative paths resolve against the scenario file's directory.
	Rules string `yaml:"rules,omitempty"`

	// Setup steps run before the flow and must all succeed.
	Setup []FlowStep `yaml:"setup,omitempty"`

	// Flow is the main sequence of dispatched actions.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// FlowToken is the flow token of every dispatch. Defaults to
	// "test-flow-default" so traces are reproducible.
	FlowToken string `yaml:"flow_token,omitempty"`
}

// FlowStep dispatches one action.
//
// String args of the form "$name" are replaced by the value captured
// under name by an earlier step.
type FlowStep struct {
	// Invoke is the action reference, e.g. "Bidding.placeBid".
	Invoke string `yaml:"invoke"`

	// Args are the action params.
	Args map[string]any `yaml:"args"`

	// Capture binds variables to dotted paths of the step's result,
	// e.g. {listing: listingId}.
	Capture map[string]string `yaml:"capture,omitempty"`

	// Expect checks the step's outcome. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes the expected outcome of a step.
type ExpectClause struct {
	// Success defaults to true.
	Success *bool `yaml:"success,omitempty"`

	// ErrorContains must be a substring of the error message.
	ErrorContains string `yaml:"error_contains,omitempty"`

	// Result is a subset match against the step's result.
	Result map[string]any `yaml:"result,omitempty"`
}

// WantSuccess reports whether the step is expected to succeed.
func (e *ExpectClause) WantSuccess() bool {
	return e.Success == nil || *e.Success
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// effect_failed, final_state.
	Type string `yaml:"type"`

	// Action is the action reference (trace_contains, trace_count,
	// optionally effect_failed).
	Action string `yaml:"action,omitempty"`

	// Args is a subset match on the call's args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the exact number of calls (trace_count).
	Count int `yaml:"count,omitempty"`

	// Rule names the sync rule (effect_failed).
	Rule string `yaml:"rule,omitempty"`

	// ErrorContains must be a substring of the effect error (effect_failed).
	ErrorContains string `yaml:"error_contains,omitempty"`

	// Table, Where and Expect query one row of state (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertEffectFailed  = "effect_failed"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos surface. A relative rules path is resolved
// against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}
	if scenario.Rules != "" {
		if _, err := os.Stat(scenario.Rules); err != nil {
			return nil, fmt.Errorf("invalid scenario: rules file not found: %s", scenario.Rules)
		}
	}
	return scenario, nil
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil && step.Expect.WantSuccess() && step.Expect.ErrorContains != "" {
			return fmt.Errorf("flow[%d].expect: error_contains requires success: false", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step FlowStep) error {
	if step.Invoke == "" {
		return fmt.Errorf("%s: invoke is required", where)
	}
	if step.Args == nil {
		return fmt.Errorf("%s: args is required (use empty map if no args)", where)
	}
	for name, path := range step.Capture {
		if name == "" || path == "" {
			return fmt.Errorf("%s: capture needs a variable name and a result path", where)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertEffectFailed:
		if a.Rule == "" && a.Action == "" {
			return fmt.Errorf("assertions[%d]: rule or action is required for effect_failed", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// defaultFlowToken is the flow token used when a scenario sets none.
const defaultFlowToken = "test-flow-default"
