package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/campuscloset/internal/app"
	"github.com/roach88/campuscloset/internal/compiler"
	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/store"
)

// ErrCodeCompile marks a rule file that does not compile at all.
const ErrCodeCompile = "E100"

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                  `json:"valid"`
	Rules       int                   `json:"rules"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules.cue | rules-dir]",
		Short: "Check a rule file against the registered concepts",
		Long: `Compile a rule file and check it against the registered concepts.

Reports unknown actions, malformed references, overlapping routes and
empty rules as errors; cycles and unclassified actions as warnings.
Without an argument the built-in rules are checked.

Exit codes:
  0 - No errors (warnings allowed)
  1 - The rule file has errors`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	rs, err := app.LoadRules(path)
	if err != nil {
		diag := compileDiagnostic(err)
		return outputValidation(formatter, ValidationResult{Diagnostics: []compiler.Diagnostic{diag}})
	}
	formatter.VerboseLog("Compiled %d rule(s), %d included and %d excluded route(s)",
		len(rs.Rules), len(rs.Included), len(rs.Excluded))

	registry, closeRegistry, err := offlineRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register concepts", err)
	}
	defer closeRegistry()

	diags := compiler.Validate(rs, registry.ActionRefs())
	return outputValidation(formatter, ValidationResult{
		Valid:       !compiler.HasErrors(diags),
		Rules:       len(rs.Rules),
		Diagnostics: diags,
	})
}

// compileDiagnostic turns a compile failure into a diagnostic.
func compileDiagnostic(err error) compiler.Diagnostic {
	d := compiler.Diagnostic{Level: compiler.LevelError, Code: ErrCodeCompile, Field: "rules", Message: err.Error()}
	var cerr *compiler.CompileError
	if errors.As(err, &cerr) {
		d.Field = cerr.Field
		d.Message = cerr.Message
		if cerr.Pos.IsValid() {
			d.Line = cerr.Pos.Line()
		}
	}
	return d
}

// offlineRegistry registers the concepts over a throwaway in-memory
// store, for commands that only need their action names.
func offlineRegistry() (*concept.Registry, func(), error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.NewRegistry(st, app.Options{}, logger), func() { st.Close() }, nil
}

func outputValidation(f *OutputFormatter, result ValidationResult) error {
	errCount, warnCount := 0, 0
	for _, d := range result.Diagnostics {
		if d.Level == compiler.LevelError {
			errCount++
		} else {
			warnCount++
		}
	}
	result.Valid = errCount == 0

	text := func(w io.Writer) error {
		for _, d := range result.Diagnostics {
			fmt.Fprintf(w, "%s %s\n", d.Level, d.Error())
		}
		if result.Valid {
			fmt.Fprintf(w, "✓ %d rule(s) valid, %d warning(s)\n", result.Rules, warnCount)
		} else {
			fmt.Fprintf(w, "✗ %d error(s), %d warning(s)\n", errCount, warnCount)
		}
		return nil
	}

	if result.Valid {
		return f.Respond(result, text)
	}
	cliErr := CLIError{
		Code:    result.Diagnostics[0].Code,
		Message: fmt.Sprintf("%d error(s)", errCount),
		Details: result.Diagnostics,
	}
	if err := f.Fail(cliErr, nil, text); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("rule file has %d error(s)", errCount))
}
