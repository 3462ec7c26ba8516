package engine

import (
	"context"

	"github.com/roach88/campuscloset/internal/ir"
)

// EffectResult is the outcome of one effect of one rule.
// Err is nil when the effect ran and succeeded.
type EffectResult struct {
	ID      string
	Rule    string
	Index   int
	Concept string
	Action  string
	Params  ir.IRObject
	Result  ir.IRObject
	Err     error
	Seq     int64
}

// OK reports whether the effect succeeded.
func (r EffectResult) OK() bool { return r.Err == nil }

// Ref returns the effect target as an action reference.
func (r EffectResult) Ref() ir.ActionRef { return ir.NewActionRef(r.Concept, r.Action) }

// Report collects every effect run for one triggering action, in the
// order they ran.
type Report struct {
	FlowToken    string
	InvocationID string
	Trigger      Trigger
	Effects      []EffectResult
}

// Failed returns the effects that did not succeed.
func (r Report) Failed() []EffectResult {
	var out []EffectResult
	for _, e := range r.Effects {
		if !e.OK() {
			out = append(out, e)
		}
	}
	return out
}

// Succeeded returns the effects that succeeded.
func (r Report) Succeeded() []EffectResult {
	var out []EffectResult
	for _, e := range r.Effects {
		if e.OK() {
			out = append(out, e)
		}
	}
	return out
}

// OK reports whether every effect succeeded. An empty report is OK.
func (r Report) OK() bool { return len(r.Failed()) == 0 }

// Observer is notified after each effect finishes, successful or not.
// Implementations must not block for long: effects run sequentially.
type Observer interface {
	EffectDone(ctx context.Context, report *Report, effect EffectResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report *Report, effect EffectResult)

// EffectDone implements Observer.
func (f ObserverFunc) EffectDone(ctx context.Context, report *Report, effect EffectResult) {
	f(ctx, report, effect)
}
