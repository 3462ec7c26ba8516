package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/campuscloset/internal/app"
	"github.com/roach88/campuscloset/internal/compiler"
	"github.com/roach88/campuscloset/internal/ir"
)

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules [rules.cue | rules-dir]",
		Short: "List the sync rules of a rule file",
		Long: `List the sync rules of a rule file, sorted by name, with their trigger
and effect templates. Without an argument the built-in rules are listed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runRules(rootOpts, path, cmd)
		},
	}
}

func runRules(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	rs, err := app.LoadRules(path)
	if err != nil {
		d := compileDiagnostic(err)
		if ferr := formatter.Error(d.Code, d.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "rule file does not compile", err)
	}

	rules := make([]compiler.RuleSpec, len(rs.Rules))
	copy(rules, rs.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	return formatter.Respond(rules, func(w io.Writer) error {
		return writeRulesText(w, rules)
	})
}

func writeRulesText(w io.Writer, rules []compiler.RuleSpec) error {
	for _, r := range rules {
		if r.Description != "" {
			fmt.Fprintf(w, "%s: %s\n", r.Name, r.Description)
		} else {
			fmt.Fprintln(w, r.Name)
		}
		fmt.Fprintf(w, "  when %s\n", r.When)
		for _, e := range r.Then {
			args, err := ir.MarshalCanonical(e.Args)
			if err != nil {
				return fmt.Errorf("rule %s: %w", r.Name, err)
			}
			fmt.Fprintf(w, "  then %s %s\n", e.Action, args)
		}
	}
	return nil
}
