package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/campuscloset/internal/ir"
)

// TraceSnapshot is the golden-file form of a scenario trace.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	FlowToken    string       `json:"flow_token,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to plain maps so it can go through
// ir.MarshalCanonical. Empty fields are left out.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type":       event.Type,
			"action_uri": event.ActionURI,
			"seq":        event.Seq,
		}
		if event.Rule != "" {
			eventMap["rule"] = event.Rule
		}
		if event.Args != nil {
			eventMap["args"] = event.Args
		}
		if event.Outcome != "" {
			eventMap["outcome"] = event.Outcome
		}
		if event.Result != nil {
			eventMap["result"] = event.Result
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.FlowToken != "" {
		out["flow_token"] = s.FlowToken
	}
	return out
}

// NewSnapshot builds the snapshot of a scenario run.
func NewSnapshot(scenario *Scenario, result *Result) *TraceSnapshot {
	flowToken := scenario.FlowToken
	if flowToken == "" {
		flowToken = defaultFlowToken
	}
	return &TraceSnapshot{
		ScenarioName: scenario.Name,
		FlowToken:    flowToken,
		Trace:        result.Trace,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<scenario name>.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := assertGolden(t, scenario.Name, NewSnapshot(scenario, result)); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace with a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	return assertGolden(t, name, &TraceSnapshot{ScenarioName: name, Trace: result.Trace})
}

func assertGolden(t *testing.T, name string, snapshot *TraceSnapshot) error {
	t.Helper()

	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
