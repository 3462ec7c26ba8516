package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/campuscloset/internal/app"
	"github.com/roach88/campuscloset/internal/dispatch"
	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/routes"
	"github.com/roach88/campuscloset/internal/store"
	"github.com/roach88/campuscloset/internal/testutil"
)

// Harness holds the wiring for one scenario run.
type Harness struct {
	app    *app.App
	trace  *traceRecorder
	logger *slog.Logger
}

// Run executes a scenario and returns its result.
//
// A non-nil error means the scenario could not run at all (bad rules,
// a failing setup step, an unknown capture). Failed expectations and
// assertions are reported in Result.Errors instead.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, st, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		out, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if !out.Success {
			return nil, fmt.Errorf("setup step %d: %s failed: %s", i, step.Invoke, out.Error)
		}
		if err := capture(step, out, result); err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
	}

	for i, step := range scenario.Flow {
		out, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		for _, msg := range checkExpect(step, out, result.Captures) {
			result.AddError(fmt.Sprintf("flow step %d (%s): %s", i, step.Invoke, msg))
		}
		if out.Success {
			if err := capture(step, out, result); err != nil {
				return nil, fmt.Errorf("flow step %d: %w", i, err)
			}
		}
	}

	result.Trace = h.trace.Events()

	actx := &AssertionContext{Store: st, Ctx: ctx, Captures: result.Captures}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, scenario *Scenario) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFakeClock(testutil.DefaultTime)
	trace := &traceRecorder{}

	a, err := app.Build(ctx, st, app.Options{
		RulesFile:  scenario.Rules,
		Logger:     logger,
		Now:        clock.Tick,
		NewID:      testutil.SequentialIDs("id"),
		NewToken:   testutil.SequentialIDs("token"),
		FlowTokens: testutil.NewFixedFlowGenerator(scenario.FlowToken),
		HashCost:   bcrypt.MinCost,
		Observers:  []dispatch.Observer{trace},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build app: %w", err)
	}
	return &Harness{app: a, trace: trace, logger: logger}, nil
}

// execute dispatches one step after substituting captured variables.
func (h *Harness) execute(ctx context.Context, step FlowStep, result *Result) (ir.Outcome, error) {
	conceptName, actionName, err := ir.ParseActionRef(step.Invoke)
	if err != nil {
		return ir.Outcome{}, err
	}

	args, err := convertArgs(step.Args, result.Captures)
	if err != nil {
		return ir.Outcome{}, fmt.Errorf("failed to convert args: %w", err)
	}

	out, _ := h.app.Dispatcher.Handle(ctx, conceptName, actionName, args)
	h.logger.Debug("step dispatched", "action", step.Invoke, "success", out.Success)
	return out, nil
}

// checkExpect returns one message per unmet expectation.
func checkExpect(step FlowStep, out ir.Outcome, captures map[string]ir.IRValue) []string {
	expect := step.Expect
	if expect == nil {
		expect = &ExpectClause{}
	}

	var msgs []string
	if expect.WantSuccess() != out.Success {
		if out.Success {
			msgs = append(msgs, "expected failure, got success")
		} else {
			msgs = append(msgs, fmt.Sprintf("expected success, got error: %s", out.Error))
		}
		return msgs
	}

	if expect.ErrorContains != "" && !strings.Contains(out.Error, expect.ErrorContains) {
		msgs = append(msgs, fmt.Sprintf("expected error containing %q, got %q", expect.ErrorContains, out.Error))
	}

	if len(expect.Result) > 0 {
		want, err := convertArgs(expect.Result, captures)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("invalid expected result: %v", err))
		} else if !subsetMatch(out.Data, want) {
			msgs = append(msgs, fmt.Sprintf("result %s does not match expected %s", formatIR(out.Data), formatIR(want)))
		}
	}
	return msgs
}

// capture binds the step's capture variables from a successful outcome.
func capture(step FlowStep, out ir.Outcome, result *Result) error {
	for name, path := range step.Capture {
		v, ok := out.Data.Lookup(path)
		if !ok {
			return fmt.Errorf("capture %s: %q not found in result", name, path)
		}
		result.Captures[name] = v
	}
	return nil
}

// convertArgs turns YAML args into an IRObject, replacing "$name"
// strings with captured values.
func convertArgs(args map[string]any, captures map[string]ir.IRValue) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}
	substituted, err := substitute(args, captures)
	if err != nil {
		return nil, err
	}
	v, err := ir.FromGo(substituted)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("args must be an object, got %T", v)
	}
	return obj, nil
}

func substitute(v any, captures map[string]ir.IRValue) (any, error) {
	switch val := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(val, "$"); ok && name != "" {
			captured, ok := captures[name]
			if !ok {
				return nil, fmt.Errorf("unknown variable $%s", name)
			}
			return captured, nil
		}
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			s, err := substitute(elem, captures)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			s, err := substitute(elem, captures)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		return v, nil
	}
}

func formatIR(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// traceRecorder turns dispatcher notifications into trace events. The
// sync report arrives before the dispatch itself, so its effects are
// held until the invocation and completion have been written.
type traceRecorder struct {
	dispatch.NopObserver

	mu      sync.Mutex
	events  []TraceEvent
	pending []engine.EffectResult
}

func (r *traceRecorder) SyncReport(_ context.Context, _ ir.Invocation, report engine.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, report.Effects...)
}

func (r *traceRecorder) Dispatched(_ context.Context, inv ir.Invocation, _ routes.Class, out ir.Outcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, TraceEvent{
		Type:      EventInvocation,
		ActionURI: string(inv.ActionURI),
		Args:      inv.Args.Clone(),
		Seq:       inv.Seq,
	})

	completion := TraceEvent{
		Type:      EventCompletion,
		ActionURI: string(inv.ActionURI),
		Seq:       inv.Seq,
	}
	if out.Success {
		completion.Outcome = OutcomeSuccess
		completion.Result = out.Data.Clone()
	} else {
		completion.Outcome = OutcomeError
		completion.Error = out.Error
	}
	r.events = append(r.events, completion)

	for _, eff := range r.pending {
		ev := TraceEvent{
			Type:      EventEffect,
			ActionURI: string(eff.Ref()),
			Rule:      eff.Rule,
			Args:      eff.Params.Clone(),
			Seq:       eff.Seq,
		}
		if eff.OK() {
			ev.Outcome = OutcomeSuccess
			ev.Result = eff.Result.Clone()
		} else {
			ev.Outcome = OutcomeError
			ev.Error = eff.Err.Error()
		}
		r.events = append(r.events, ev)
	}
	r.pending = nil
}

// Events returns a copy of the recorded trace.
func (r *traceRecorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}
