package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/campuscloset/internal/app"
	"github.com/roach88/campuscloset/internal/config"
	"github.com/roach88/campuscloset/internal/server"
	"github.com/roach88/campuscloset/internal/store"
	"github.com/roach88/campuscloset/internal/telemetry"
)

// ServeOptions holds flags for the serve command. Empty flags fall back
// to the environment configuration.
type ServeOptions struct {
	*RootOptions
	Addr      string
	Database  string
	RulesFile string
	Trace     bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server.

Every request is a POST /api with {"concept", "action", "params"}. The
server also exposes GET /healthz and GET /metrics.

Configuration comes from CAMPUSCLOSET_* environment variables; flags
override them.

Example:
  campuscloset serve --addr :8000 --db ./campuscloset.db
  campuscloset serve --rules ./rules.cue --trace`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $CAMPUSCLOSET_ADDR or :8000)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $CAMPUSCLOSET_DB_PATH)")
	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "rule file replacing the built-in rules")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "write OpenTelemetry spans to stderr")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	if opts.RulesFile != "" {
		cfg.RulesFile = opts.RulesFile
	}
	if opts.Trace {
		cfg.TraceStdout = true
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.TraceStdout, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()

	metrics := telemetry.NewMetrics()
	a, err := app.Build(ctx, st, app.Options{
		RulesFile:       cfg.RulesFile,
		Logger:          logger,
		EffectTimeout:   cfg.EffectTimeout,
		VerificationTTL: cfg.VerificationTTL,
		Metrics:         metrics,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}

	srv := server.New(a.Dispatcher,
		server.WithLogger(logger),
		server.WithCORSOrigin(cfg.CORSOrigin),
		server.WithMetrics(metrics.Handler()),
		server.WithHealthCheck(func(ctx context.Context) error {
			return st.DB().PingContext(ctx)
		}),
	)
	httpServer := srv.HTTPServer(cfg.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped")
	return nil
}
