// Package dispatch routes one inbound action request through the core:
// registry lookup, route classification, the gateway call for excluded
// routes, the action itself, and the sync engine.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/routes"
)

// Gateway names the concept and entry action that excluded routes are
// announced to before they run.
type Gateway struct {
	Concept string
	Action  string
}

// DefaultGateway is Requesting.request.
var DefaultGateway = Gateway{Concept: "Requesting", Action: "request"}

// Dispatcher is the single entry point for running a concept action.
//
// Steps, in order:
//  1. resolve the concept (StructuralError if absent)
//  2. resolve the action (StructuralError if absent)
//  3. classify the route; warn when unclassified
//  4. for excluded routes, call the gateway and discard its result
//  5. run the action (ActionError on failure; no syncs)
//  6. run triggered sync rules
//  7. return the action's outcome unchanged
//
// A Dispatcher holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	registry *concept.Registry
	routes   *routes.Table
	syncs    *engine.Engine
	gateway  Gateway
	clock    *engine.Clock
	flowGen  engine.FlowTokenGenerator
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithGateway overrides the gateway concept and entry action.
func WithGateway(g Gateway) Option {
	return func(d *Dispatcher) { d.gateway = g }
}

// WithClock sets the logical clock used to stamp invocations.
func WithClock(c *engine.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithFlowTokens sets the flow token generator. Default: UUIDv7.
func WithFlowTokens(g engine.FlowTokenGenerator) Option {
	return func(d *Dispatcher) { d.flowGen = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver sets the observer notified about each dispatch.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithTracer sets the OpenTelemetry tracer. Default: the global provider's
// tracer, which is a no-op until a provider is installed.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New creates a Dispatcher. syncs may be nil, in which case no rule ever fires.
func New(registry *concept.Registry, table *routes.Table, syncs *engine.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		routes:   table,
		syncs:    syncs,
		gateway:  DefaultGateway,
		clock:    engine.NewClock(),
		flowGen:  engine.UUIDv7Generator{},
		logger:   slog.Default(),
		observer: NopObserver{},
		tracer:   otel.Tracer("github.com/roach88/campuscloset/internal/dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle runs conceptName.actionName with params under a new flow.
//
// The returned Outcome is always definitive. The error is nil on success,
// a *StructuralError when the concept or action does not exist, and an
// *ActionError when the action ran and failed.
func (d *Dispatcher) Handle(ctx context.Context, conceptName, actionName string, params ir.IRObject) (ir.Outcome, error) {
	if params == nil {
		params = ir.IRObject{}
	}
	inv := ir.Invocation{
		FlowToken: d.flowGen.Generate(),
		ActionURI: ir.NewActionRef(conceptName, actionName),
		Args:      params,
		Seq:       d.clock.Next(),
	}
	if id, err := ir.InvocationID(inv.FlowToken, inv.ActionURI, inv.Args, inv.Seq); err == nil {
		inv.ID = id
	} else {
		d.logger.Warn("invocation id unavailable", "action", string(inv.ActionURI), "error", err)
	}
	return d.run(ctx, inv, conceptName, actionName)
}

// HandleInvocation runs a pre-built invocation. The caller supplies the
// flow token, seq and ID.
func (d *Dispatcher) HandleInvocation(ctx context.Context, inv ir.Invocation) (ir.Outcome, error) {
	conceptName, actionName, err := ir.ParseActionRef(string(inv.ActionURI))
	if err != nil {
		serr := &StructuralError{Concept: string(inv.ActionURI), Err: concept.ErrConceptNotFound}
		return ir.Failed(serr.Error()), serr
	}
	return d.run(ctx, inv, conceptName, actionName)
}

func (d *Dispatcher) run(ctx context.Context, inv ir.Invocation, conceptName, actionName string) (ir.Outcome, error) {
	start := time.Now()
	if inv.Args == nil {
		inv.Args = ir.IRObject{}
	}

	ctx, span := d.tracer.Start(ctx, "dispatch "+string(inv.ActionURI),
		trace.WithAttributes(
			attribute.String("campuscloset.concept", conceptName),
			attribute.String("campuscloset.action", actionName),
			attribute.String("campuscloset.flow_token", inv.FlowToken),
		),
	)
	defer span.End()

	ctx = engine.WithFlow(ctx, inv.FlowToken, inv.ID)
	log := d.logger.With("action", string(inv.ActionURI), "flow_token", inv.FlowToken, "seq", inv.Seq)

	class := routes.Unclassified
	finish := func(out ir.Outcome, err error) (ir.Outcome, error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("campuscloset.route", class.String()))
		d.observer.Dispatched(ctx, inv, class, out, time.Since(start))
		return out, err
	}

	// 1-2. resolve
	target, ok := d.registry.Get(conceptName)
	if !ok {
		err := &StructuralError{Concept: conceptName, Action: actionName, Err: concept.ErrConceptNotFound}
		log.Warn("concept not found")
		return finish(ir.Failed(err.Error()), err)
	}
	handler, ok := target.Action(actionName)
	if !ok || handler == nil {
		err := &StructuralError{Concept: conceptName, Action: actionName, Err: concept.ErrActionNotFound}
		log.Warn("action not found")
		return finish(ir.Failed(err.Error()), err)
	}

	// 3. classify
	class = d.routes.Classify(conceptName, actionName)
	if class == routes.Unclassified {
		log.Warn("unverified route")
		d.observer.Unclassified(ctx, inv)
	}

	// 4. gateway
	if class == routes.Excluded {
		d.callGateway(ctx, log, inv)
	}

	// 5. primary action
	result, err := concept.Call(ctx, handler, inv.Args)
	if err != nil {
		var pe *concept.PanicError
		if errors.As(err, &pe) {
			log.Error("action panicked", "panic", pe.Value, "stack", string(pe.Stack))
		} else {
			log.Info("action failed", "error", err)
		}
		aerr := &ActionError{Concept: conceptName, Action: actionName, Err: err}
		return finish(ir.Failed(aerr.Error()), aerr)
	}
	log.Debug("action succeeded")

	// 6. syncs
	if d.syncs != nil && d.syncs.ShouldSync(conceptName, actionName) {
		report := d.syncs.ExecuteSyncs(context.WithoutCancel(ctx), conceptName, actionName, inv.Args, result)
		span.SetAttributes(
			attribute.Int("campuscloset.sync.effects", len(report.Effects)),
			attribute.Int("campuscloset.sync.failed", len(report.Failed())),
		)
		d.observer.SyncReport(ctx, inv, report)
	}

	// 7. outcome
	return finish(ir.Succeeded(result), nil)
}

// callGateway announces an excluded route. Absence of the gateway is not
// an error; a failing gateway is logged and reported, never returned.
func (d *Dispatcher) callGateway(ctx context.Context, log *slog.Logger, inv ir.Invocation) {
	gw, ok := d.registry.Get(d.gateway.Concept)
	if !ok {
		return
	}
	entry, ok := gw.Action(d.gateway.Action)
	if !ok || entry == nil {
		return
	}

	gwParams := ir.IRObject{
		"path":         ir.IRString(inv.ActionURI.Path()),
		"actionParams": inv.Args.Clone(),
	}
	if _, err := concept.Call(ctx, entry, gwParams); err != nil {
		log.Error("gateway call failed",
			"gateway", d.gateway.Concept+"."+d.gateway.Action,
			"error", err,
		)
		d.observer.GatewayFailed(ctx, inv, err)
	}
}

// Registry returns the dispatcher's concept registry.
func (d *Dispatcher) Registry() *concept.Registry { return d.registry }

// Routes returns the dispatcher's route table.
func (d *Dispatcher) Routes() *routes.Table { return d.routes }

// Syncs returns the dispatcher's sync engine.
func (d *Dispatcher) Syncs() *engine.Engine { return d.syncs }
