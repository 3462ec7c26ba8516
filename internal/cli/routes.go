package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/campuscloset/internal/app"
)

// RoutesResult is the route classification of every registered action.
type RoutesResult struct {
	Included     []string `json:"included"`
	Excluded     []string `json:"excluded"`
	Unclassified []string `json:"unclassified"`
}

// NewRoutesCommand creates the routes command.
func NewRoutesCommand(rootOpts *RootOptions) *cobra.Command {
	var rulesFile string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Show how every action is classified",
		Long: `Show the included and excluded routes of the rule file and the
registered actions that are in neither list. Unclassified actions still
run but log a warning on every call.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutes(rootOpts, rulesFile, cmd)
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule file replacing the built-in rules")
	return cmd
}

func runRoutes(opts *RootOptions, rulesFile string, cmd *cobra.Command) error {
	rs, err := app.LoadRules(rulesFile)
	if err != nil {
		return WrapExitError(ExitFailure, "rule file does not compile", err)
	}
	table, err := rs.RouteTable()
	if err != nil {
		return WrapExitError(ExitFailure, "invalid routes", err)
	}

	registry, closeRegistry, err := offlineRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register concepts", err)
	}
	defer closeRegistry()

	result := RoutesResult{
		Included:     table.Included(),
		Excluded:     table.Excluded(),
		Unclassified: table.Unclassified(registry.ActionRefs()),
	}
	if result.Unclassified == nil {
		result.Unclassified = []string{}
	}

	return newFormatter(opts, cmd).Respond(result, func(w io.Writer) error {
		writeRouteGroup(w, "included", result.Included)
		writeRouteGroup(w, "excluded", result.Excluded)
		writeRouteGroup(w, "unclassified", result.Unclassified)
		return nil
	})
}

func writeRouteGroup(w io.Writer, name string, refs []string) {
	fmt.Fprintf(w, "%s (%d):\n", name, len(refs))
	for _, ref := range refs {
		fmt.Fprintf(w, "  %s\n", ref)
	}
}
