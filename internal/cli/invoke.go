package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/campuscloset/internal/app"
	"github.com/roach88/campuscloset/internal/dispatch"
	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/routes"
	"github.com/roach88/campuscloset/internal/store"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Args      string
	Database  string
	RulesFile string

	// FlowTokens overrides the flow token generator (for testing).
	FlowTokens engine.FlowTokenGenerator
}

// InvokeResult is the data printed for a dispatched action.
type InvokeResult struct {
	FlowToken string     `json:"flow_token"`
	Outcome   ir.Outcome `json:"outcome"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <Concept.action>",
		Short: "Dispatch one action against a database",
		Long: `Dispatch one action against a database, exactly as POST /api would,
including gateway calls and sync rules. The dispatch is written to the
action log.

Exit codes:
  0 - The action succeeded
  1 - The action ran and failed
  2 - Command error (bad args, unknown concept or action, etc.)

Example:
  campuscloset invoke UserAccount.getSchools --db ./campuscloset.db
  campuscloset invoke Feed.getLatest --args '{"userId":"u1","limit":5}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeAction(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "action params as a JSON object")
	cmd.Flags().StringVar(&opts.Database, "db", "campuscloset.db", "path to SQLite database")
	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "rule file replacing the built-in rules")

	return cmd
}

func invokeAction(opts *InvokeOptions, actionURI string, cmd *cobra.Command) error {
	conceptName, actionName, err := ir.ParseActionRef(actionURI)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid action", err)
	}
	params, err := ir.ObjectFromJSON([]byte(opts.Args))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	flowTokens := opts.FlowTokens
	if flowTokens == nil {
		flowTokens = engine.UUIDv7Generator{}
	}
	recorder := &flowRecorder{}
	a, err := app.Build(ctx, st, app.Options{
		RulesFile:  opts.RulesFile,
		Logger:     newLogger(cmd.ErrOrStderr(), opts.Verbose),
		FlowTokens: flowTokens,
		Observers:  []dispatch.Observer{recorder},
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build app", err)
	}

	out, err := a.Dispatcher.Handle(ctx, conceptName, actionName, params)
	result := InvokeResult{FlowToken: recorder.flowToken, Outcome: out}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		if encErr := writeJSON(w, result); encErr != nil {
			return encErr
		}
	} else {
		body, encErr := json.MarshalIndent(out, "", "  ")
		if encErr != nil {
			return encErr
		}
		fmt.Fprintf(w, "flow %s\n%s\n", result.FlowToken, body)
	}

	switch {
	case err == nil:
		return nil
	case dispatch.IsNotFound(err):
		return WrapExitError(ExitCommandError, "unknown action", err)
	default:
		return WrapExitError(ExitFailure, "action failed", err)
	}
}

// flowRecorder remembers the flow token of the dispatch.
type flowRecorder struct {
	dispatch.NopObserver
	flowToken string
}

func (r *flowRecorder) Dispatched(_ context.Context, inv ir.Invocation, _ routes.Class, _ ir.Outcome, _ time.Duration) {
	r.flowToken = inv.FlowToken
}
