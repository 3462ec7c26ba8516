package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/ir"
)

// Engine executes the sync rules triggered by a successful action.
//
// Thread-safety model:
//   - the registry and rule table are read-only after construction
//   - ExecuteSyncs may be called from many goroutines at once
//   - effects of a single call run sequentially, in rule order then
//     effect order
type Engine struct {
	registry      *concept.Registry
	rules         *RuleTable
	clock         *Clock
	logger        *slog.Logger
	observer      Observer
	effectTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the logical clock used to stamp effects.
// Share one clock with the dispatcher so the action log has one order.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithObserver registers an observer notified after every effect.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithEffectTimeout bounds each effect's run time. Zero means no bound.
func WithEffectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.effectTimeout = d
	}
}

// New creates an Engine over registry and rules.
func New(registry *concept.Registry, rules *RuleTable, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		rules:    rules,
		clock:    NewClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the engine's rule table.
func (e *Engine) Rules() *RuleTable {
	return e.rules
}

// ShouldSync reports whether any rule is triggered by concept.action.
func (e *Engine) ShouldSync(conceptName, action string) bool {
	return e.rules.ShouldSync(conceptName, action)
}

// ExecuteSyncs runs every rule triggered by conceptName.action, given the
// triggering action's params and its successful result.
//
// Each effect is resolved, mapped and invoked independently. A missing
// concept, missing action, failing mapper or failing effect is recorded
// in the report and logged, and the remaining effects still run.
// ExecuteSyncs never returns an error.
//
// Effects run detached from ctx cancellation: once the triggering action
// has committed, its effects run to completion even if the caller has
// gone. Values on ctx (flow, span) are kept, and the effect timeout is the
// only bound.
func (e *Engine) ExecuteSyncs(ctx context.Context, conceptName, action string, params, result ir.IRObject) Report {
	ctx = context.WithoutCancel(ctx)
	flowToken, invocationID := FlowFrom(ctx)
	report := Report{
		FlowToken:    flowToken,
		InvocationID: invocationID,
		Trigger:      Trigger{Concept: conceptName, Action: action},
	}

	rules := e.rules.FindTriggered(conceptName, action)
	if len(rules) == 0 {
		return report
	}

	// Mappers see a private copy so no effect can alter what the caller
	// of the triggering action receives.
	params = params.Clone()
	result = result.Clone()
	if params == nil {
		params = ir.IRObject{}
	}
	if result == nil {
		result = ir.IRObject{}
	}

	for _, rule := range rules {
		e.logger.Debug("sync rule matched",
			"sync_id", rule.Name,
			"trigger", string(rule.Trigger.Ref()),
			"flow_token", flowToken,
		)
		for idx, eff := range rule.Includes {
			res := e.runEffect(ctx, rule.Name, idx, eff, params, result, invocationID)
			report.Effects = append(report.Effects, res)
			e.logEffect(res, flowToken)
			if e.observer != nil {
				e.observer.EffectDone(ctx, &report, res)
			}
		}
	}

	return report
}

func (e *Engine) runEffect(
	ctx context.Context,
	ruleName string,
	idx int,
	eff Effect,
	params, result ir.IRObject,
	invocationID string,
) EffectResult {
	res := EffectResult{
		Rule:    ruleName,
		Index:   idx,
		Concept: eff.Concept,
		Action:  eff.Action,
		Seq:     e.clock.Next(),
	}
	setID := func() {
		if id, err := ir.EffectID(invocationID, ruleName, idx, res.Seq, res.Params); err == nil {
			res.ID = id
		}
	}
	setID()
	fail := func(code EffectErrorCode, err error) EffectResult {
		res.Err = &EffectError{Code: code, Rule: ruleName, Concept: eff.Concept, Action: eff.Action, Err: err}
		return res
	}

	target, ok := e.registry.Get(eff.Concept)
	if !ok {
		return fail(ErrCodeConceptMissing, concept.ErrConceptNotFound)
	}
	handler, ok := target.Action(eff.Action)
	if !ok || handler == nil {
		return fail(ErrCodeActionMissing, concept.ErrActionNotFound)
	}

	effParams, err := safeMap(eff.Map, params, result)
	if err != nil {
		return fail(ErrCodeMappingFailed, err)
	}
	res.Params = effParams
	setID()

	callCtx := ctx
	if e.effectTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.effectTimeout)
		defer cancel()
	}

	out, err := concept.Call(callCtx, handler, effParams)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fail(ErrCodeTimeout, err)
		}
		return fail(ErrCodeEffectFailed, err)
	}
	res.Result = out
	return res
}

// safeMap runs a mapper, converting a panic into an error.
func safeMap(m Mapper, params, result ir.IRObject) (out ir.IRObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("mapper panicked: %v", r)
		}
	}()
	out, err = m(params, result)
	if err == nil && out == nil {
		out = ir.IRObject{}
	}
	return out, err
}

func (e *Engine) logEffect(res EffectResult, flowToken string) {
	if res.OK() {
		e.logger.Info("sync fired",
			"sync_id", res.Rule,
			"effect", string(res.Ref()),
			"index", res.Index,
			"seq", res.Seq,
			"flow_token", flowToken,
		)
		return
	}
	e.logger.Error("sync effect failed",
		"sync_id", res.Rule,
		"effect", string(res.Ref()),
		"index", res.Index,
		"seq", res.Seq,
		"flow_token", flowToken,
		"error", res.Err,
	)
}
