package dispatch

import (
	"context"
	"time"

	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/routes"
)

// Observer receives notifications about every dispatch. Methods are
// called synchronously on the request goroutine.
type Observer interface {
	// Dispatched is called once per Handle with the definitive outcome.
	Dispatched(ctx context.Context, inv ir.Invocation, class routes.Class, out ir.Outcome, elapsed time.Duration)
	// Unclassified is called when a route is in neither route list.
	Unclassified(ctx context.Context, inv ir.Invocation)
	// GatewayFailed is called when the gateway entry action fails.
	GatewayFailed(ctx context.Context, inv ir.Invocation, err error)
	// SyncReport is called after the sync engine ran for a successful action.
	SyncReport(ctx context.Context, inv ir.Invocation, report engine.Report)
}

// NopObserver implements Observer with no-ops. Embed it to implement
// only the methods you need.
type NopObserver struct{}

func (NopObserver) Dispatched(context.Context, ir.Invocation, routes.Class, ir.Outcome, time.Duration) {
}

func (NopObserver) Unclassified(context.Context, ir.Invocation) {}

func (NopObserver) GatewayFailed(context.Context, ir.Invocation, error) {}

func (NopObserver) SyncReport(context.Context, ir.Invocation, engine.Report) {}

// MultiObserver fans each notification out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) Dispatched(ctx context.Context, inv ir.Invocation, class routes.Class, out ir.Outcome, elapsed time.Duration) {
	for _, o := range m {
		o.Dispatched(ctx, inv, class, out, elapsed)
	}
}

func (m MultiObserver) Unclassified(ctx context.Context, inv ir.Invocation) {
	for _, o := range m {
		o.Unclassified(ctx, inv)
	}
}

func (m MultiObserver) GatewayFailed(ctx context.Context, inv ir.Invocation, err error) {
	for _, o := range m {
		o.GatewayFailed(ctx, inv, err)
	}
}

func (m MultiObserver) SyncReport(ctx context.Context, inv ir.Invocation, report engine.Report) {
	for _, o := range m {
		o.SyncReport(ctx, inv, report)
	}
}
