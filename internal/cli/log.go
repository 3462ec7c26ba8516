package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database  string
	FlowToken string
	Limit     int
	Flows     bool
}

// LogEntry is one dispatch in command output.
type LogEntry struct {
	Seq       int64       `json:"seq"`
	ID        string      `json:"id"`
	FlowToken string      `json:"flow_token"`
	ActionURI string      `json:"action_uri"`
	Args      ir.IRObject `json:"args"`
	Route     string      `json:"route"`
	Outcome   ir.Outcome  `json:"outcome"`
	ElapsedUS int64       `json:"elapsed_us"`
	Effects   []LogEffect `json:"effects"`
}

// LogEffect is one sync effect of a dispatch.
type LogEffect struct {
	Seq       int64       `json:"seq"`
	Rule      string      `json:"rule"`
	ActionURI string      `json:"action_uri"`
	Params    ir.IRObject `json:"params"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the action log",
		Long: `Show recorded dispatches and the sync effects each one caused.

Without --flow the most recent dispatches are shown, newest first. With
--flow every dispatch of that flow is shown in seq order.

Examples:
  campuscloset log --db ./campuscloset.db
  campuscloset log --db ./campuscloset.db --limit 50
  campuscloset log --db ./campuscloset.db --flows
  campuscloset log --db ./campuscloset.db --flow 0190f3b2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "campuscloset.db", "path to SQLite database")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "show one flow")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of recent dispatches or flows")
	cmd.Flags().BoolVar(&opts.Flows, "flows", false, "list recent flow tokens instead")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	out := newFormatter(opts.RootOptions, cmd)
	if opts.Flows {
		tokens, err := st.ListFlowTokens(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list flows", err)
		}
		return out.Respond(tokens, func(w io.Writer) error {
			for _, t := range tokens {
				fmt.Fprintln(w, t)
			}
			return nil
		})
	}

	var dispatches []store.Dispatch
	if opts.FlowToken != "" {
		dispatches, err = st.ReadFlow(ctx, opts.FlowToken)
	} else {
		dispatches, err = st.ReadRecent(ctx, opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read action log", err)
	}

	if opts.FlowToken != "" && len(dispatches) == 0 {
		if err := out.Error("E_FLOW_NOT_FOUND", fmt.Sprintf("no dispatches for flow %s", opts.FlowToken), nil); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, "flow not found")
	}

	entries := make([]LogEntry, len(dispatches))
	for i, d := range dispatches {
		entries[i] = toLogEntry(d)
	}

	return out.Respond(entries, func(w io.Writer) error {
		writeLogText(w, entries)
		return nil
	})
}

func toLogEntry(d store.Dispatch) LogEntry {
	e := LogEntry{
		Seq:       d.Invocation.Seq,
		ID:        d.Invocation.ID,
		FlowToken: d.Invocation.FlowToken,
		ActionURI: string(d.Invocation.ActionURI),
		Args:      d.Invocation.Args,
		Route:     d.Route,
		Outcome:   d.Outcome,
		ElapsedUS: d.Elapsed.Microseconds(),
		Effects:   make([]LogEffect, len(d.Effects)),
	}
	for i, eff := range d.Effects {
		e.Effects[i] = LogEffect{
			Seq:       eff.Seq,
			Rule:      eff.Rule,
			ActionURI: eff.Concept + "." + eff.Action,
			Params:    eff.Params,
			OK:        eff.OK(),
			Error:     eff.Error,
		}
	}
	return e
}

func writeLogText(w io.Writer, entries []LogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No dispatches recorded.")
		return
	}
	for _, e := range entries {
		status := "ok"
		if !e.Outcome.Success {
			status = "error: " + e.Outcome.Error
		}
		fmt.Fprintf(w, "#%d %s [%s] %s (flow %s)\n", e.Seq, e.ActionURI, e.Route, status, e.FlowToken)
		for _, eff := range e.Effects {
			effStatus := "ok"
			if !eff.OK {
				effStatus = "error: " + eff.Error
			}
			fmt.Fprintf(w, "    #%d %s -> %s %s\n", eff.Seq, eff.Rule, eff.ActionURI, effStatus)
		}
	}
}
