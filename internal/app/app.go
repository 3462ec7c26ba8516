// Package app is the composition root: it registers the concepts, loads
// the sync rules and routes, and wires the engine and dispatcher.
package app

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/campuscloset/internal/actionlog"
	"github.com/roach88/campuscloset/internal/compiler"
	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
	"github.com/roach88/campuscloset/internal/concepts/bidding"
	"github.com/roach88/campuscloset/internal/concepts/feed"
	"github.com/roach88/campuscloset/internal/concepts/itemlisting"
	"github.com/roach88/campuscloset/internal/concepts/messaging"
	"github.com/roach88/campuscloset/internal/concepts/requesting"
	"github.com/roach88/campuscloset/internal/concepts/useraccount"
	"github.com/roach88/campuscloset/internal/dispatch"
	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/routes"
	"github.com/roach88/campuscloset/internal/store"
	"github.com/roach88/campuscloset/internal/telemetry"
)

// DefaultRules is the embedded rule file.
//
//go:embed rules.cue
var DefaultRules []byte

// DefaultRulesName is the file name reported for DefaultRules.
const DefaultRulesName = "rules.cue"

// Options configure Build. The zero value is a working production setup
// with the embedded rules and no metrics.
type Options struct {
	// RulesFile replaces the embedded rules when set.
	RulesFile string

	Logger *slog.Logger

	// Concept dependencies. Nil means the base defaults.
	Now      func() time.Time
	NewID    func() string
	NewToken func() string

	FlowTokens      engine.FlowTokenGenerator
	EffectTimeout   time.Duration
	VerificationTTL time.Duration
	HashCost        int

	Metrics *telemetry.Metrics
	Tracer  trace.Tracer

	// DisableActionLog skips the action log recorder.
	DisableActionLog bool

	// Observers are notified after the built-in ones.
	Observers []dispatch.Observer
}

// App is a fully wired CampusCloset backend.
type App struct {
	Store      *store.Store
	Registry   *concept.Registry
	Rules      *compiler.RuleSet
	Routes     *routes.Table
	Engine     *engine.Engine
	Dispatcher *dispatch.Dispatcher
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// Build wires an App over st.
func Build(ctx context.Context, st *store.Store, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rs, err := LoadRules(opts.RulesFile)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry(st, opts, logger)

	diags := compiler.Validate(rs, registry.ActionRefs())
	for _, d := range diags {
		if d.Level == compiler.LevelWarning {
			logger.Warn("rule file", "code", d.Code, "field", d.Field, "message", d.Message)
		}
	}
	if compiler.HasErrors(diags) {
		return nil, fmt.Errorf("rules: %w", diags[0])
	}

	table, err := rs.RouteTable()
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	rules, err := rs.RuleTable()
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	// Continue the logical clock from the action log so seq stays
	// monotonic across restarts.
	last, err := st.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("action log: %w", err)
	}
	clock := engine.NewClockAt(last)

	syncs := engine.New(registry, rules,
		engine.WithClock(clock),
		engine.WithLogger(logger),
		engine.WithEffectTimeout(opts.EffectTimeout),
	)

	var observers dispatch.MultiObserver
	if opts.Metrics != nil {
		observers = append(observers, opts.Metrics)
	}
	if !opts.DisableActionLog {
		observers = append(observers, actionlog.New(st, logger))
	}
	observers = append(observers, opts.Observers...)

	dopts := []dispatch.Option{
		dispatch.WithClock(clock),
		dispatch.WithLogger(logger),
		dispatch.WithObserver(observers),
	}
	if opts.FlowTokens != nil {
		dopts = append(dopts, dispatch.WithFlowTokens(opts.FlowTokens))
	}
	if opts.Tracer != nil {
		dopts = append(dopts, dispatch.WithTracer(opts.Tracer))
	}

	logger.Info("app built",
		"concepts", len(registry.Names()),
		"rules", rules.Len(),
		"included", len(table.Included()),
		"excluded", len(table.Excluded()),
	)

	return &App{
		Store:      st,
		Registry:   registry,
		Rules:      rs,
		Routes:     table,
		Engine:     syncs,
		Dispatcher: dispatch.New(registry, table, syncs, dopts...),
		Metrics:    opts.Metrics,
		Logger:     logger,
	}, nil
}

// LoadRules compiles path, or the embedded rules when path is empty.
func LoadRules(path string) (*compiler.RuleSet, error) {
	if path == "" {
		return compiler.CompileSource(DefaultRulesName, DefaultRules)
	}
	return compiler.Load(path)
}

// NewRegistry registers the six concepts over st.
func NewRegistry(st *store.Store, opts Options, logger *slog.Logger) *concept.Registry {
	var bopts []base.Option
	if opts.Now != nil {
		bopts = append(bopts, base.WithClock(opts.Now))
	}
	if opts.NewID != nil {
		bopts = append(bopts, base.WithIDs(opts.NewID))
	}
	if opts.NewToken != nil {
		bopts = append(bopts, base.WithTokens(opts.NewToken))
	}
	bopts = append(bopts, base.WithLogger(logger))
	deps := base.New(st, bopts...)

	var uopts []useraccount.Option
	if opts.VerificationTTL > 0 {
		uopts = append(uopts, useraccount.WithTokenTTL(opts.VerificationTTL))
	}
	if opts.HashCost > 0 {
		uopts = append(uopts, useraccount.WithHashCost(opts.HashCost))
	}

	return concept.NewRegistry(
		useraccount.New(deps, uopts...).Concept(),
		itemlisting.New(deps).Concept(),
		bidding.New(deps).Concept(),
		messaging.New(deps).Concept(),
		feed.New(deps).Concept(),
		requesting.New(deps).Concept(),
	)
}
