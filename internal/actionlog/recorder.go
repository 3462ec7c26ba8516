// Package actionlog persists every dispatch and its sync effects to the
// store's action log.
package actionlog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/campuscloset/internal/dispatch"
	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/routes"
	"github.com/roach88/campuscloset/internal/store"
)

// Recorder is a dispatch.Observer that writes one action log entry per
// dispatch. The sync report arrives before the final outcome, so it is
// held until Dispatched and written in the same transaction.
//
// A failed write is logged and dropped; it never affects the response.
type Recorder struct {
	dispatch.NopObserver

	store  *store.Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]engine.Report
}

// New creates a Recorder writing to st.
func New(st *store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:   st,
		logger:  logger,
		pending: make(map[string]engine.Report),
	}
}

// SyncReport implements dispatch.Observer.
func (r *Recorder) SyncReport(_ context.Context, inv ir.Invocation, report engine.Report) {
	if inv.ID == "" {
		return
	}
	r.mu.Lock()
	r.pending[inv.ID] = report
	r.mu.Unlock()
}

// Dispatched implements dispatch.Observer.
func (r *Recorder) Dispatched(ctx context.Context, inv ir.Invocation, class routes.Class, out ir.Outcome, elapsed time.Duration) {
	if inv.ID == "" {
		r.logger.Warn("action log skipped: invocation has no id", "action", string(inv.ActionURI))
		return
	}

	r.mu.Lock()
	report, ok := r.pending[inv.ID]
	delete(r.pending, inv.ID)
	r.mu.Unlock()

	entry := store.Dispatch{
		Invocation: inv,
		Route:      class.String(),
		Outcome:    out,
		Elapsed:    elapsed,
	}
	if ok {
		entry.Effects = Effects(report)
	}

	// The request context may already be cancelled by the time the
	// response is written; the log entry is still wanted.
	if err := r.store.WriteDispatch(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("action log write failed",
			"action", string(inv.ActionURI),
			"invocation_id", inv.ID,
			"error", err,
		)
	}
}

// Effects converts an engine report into store rows.
func Effects(report engine.Report) []store.Effect {
	out := make([]store.Effect, 0, len(report.Effects))
	for _, e := range report.Effects {
		row := store.Effect{
			ID:           e.ID,
			InvocationID: report.InvocationID,
			Rule:         e.Rule,
			Index:        e.Index,
			Concept:      e.Concept,
			Action:       e.Action,
			Params:       e.Params,
			Result:       e.Result,
			Seq:          e.Seq,
		}
		if e.Err != nil {
			row.Error = e.Err.Error()
			row.ErrorCode = string(engine.ErrCodeEffectFailed)
			var ee *engine.EffectError
			if errors.As(e.Err, &ee) {
				row.ErrorCode = string(ee.Code)
			}
		}
		out = append(out, row)
	}
	return out
}
