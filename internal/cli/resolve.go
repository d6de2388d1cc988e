// Package cli — resolve.go implements the "scriptdeps resolve" command.
//
// The resolve command scans one or more scripts for file annotations and
// resolves them with a single resolver, in the order given. This mirrors a
// notebook kernel processing consecutive cells: a repository registered by
// one script stays registered for the scripts after it, and each script
// reports only the classpath entries it added.
//
// Exit codes:
//   - 2 when a script contains an unknown annotation (with --strict) or an
//     unusable repository, or cannot be parsed
//   - 3 when at least one dependency could not be resolved
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/scriptdeps/internal/annotation"
	"github.com/mmr-tortoise/scriptdeps/internal/model"
	"github.com/mmr-tortoise/scriptdeps/internal/resolver"
)

// resolveFlags holds the flag values for the resolve command.
// These are bound to cobra flags in NewResolveCommand.
type resolveFlags struct {
	// strict passes every scanned annotation to the resolver, so that an
	// unknown annotation kind aborts the run. By default only Repository
	// and DependsOn annotations are kept.
	strict bool

	// repos are extra repositories registered after the configured ones
	// and before any script is processed.
	repos []string

	// separator joins classpath entries in text output.
	separator string
}

// NewResolveCommand creates the "resolve" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewResolveCommand() *cobra.Command {
	flags := &resolveFlags{}

	cmd := &cobra.Command{
		Use:   "resolve <script>...",
		Short: "Resolve the dependencies declared by scripts",
		Long: `Resolve the @file:Repository and @file:DependsOn annotations of each
script, in order, and print the resulting classpath.

Diagnostics for dependencies that could not be resolved are printed to
stderr; the remaining dependencies are still resolved.

Examples:
  scriptdeps resolve analysis.main.kts
  scriptdeps resolve cell1.kts cell2.kts --repo https://jitpack.io
  scriptdeps resolve --json --strict notebook-cell.kts`,

		// At least one script path is required.
		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.strict, "strict", false,
		"Fail on annotations other than Repository and DependsOn")
	cmd.Flags().StringArrayVar(&flags.repos, "repo", nil,
		"Additional repository URL or directory (repeatable)")
	cmd.Flags().StringVar(&flags.separator, "separator", string(os.PathListSeparator),
		"Separator between classpath entries in text output")

	return cmd
}

// scriptReport is the outcome of resolving one script.
type scriptReport struct {
	Script      string             `json:"script"`
	Added       []string           `json:"added"`
	Diagnostics []model.Diagnostic `json:"-"`
	Problems    []diagnosticJSON   `json:"diagnostics,omitempty"`
}

// diagnosticJSON is the JSON form of a model.Diagnostic. The underlying
// error is rendered as a string under "detail".
type diagnosticJSON struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Location string `json:"location,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// runResolve is the main logic function for the resolve command.
func runResolve(ctx context.Context, stdout, stderr io.Writer, paths []string, flags *resolveFlags) error {
	// Step 1: Check every script exists before doing any network work.
	for _, p := range paths {
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			return model.WrapCLIError(model.ExitScriptNotFound,
				fmt.Sprintf("script not found: %s", p), err)
		}
	}

	// Step 2: Build the resolver with configured and command-line repositories.
	effective := *cfg
	effective.Repositories = append(append([]string{}, cfg.Repositories...), flags.repos...)

	r, err := resolver.New(&effective, logger)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to create resolver", err)
	}

	// Step 3: Resolve each script in order.
	reports := make([]scriptReport, 0, len(paths))
	classpath := []string{}
	failed := 0

	for _, p := range paths {
		script, err := annotation.ParseFile(p)
		if err != nil {
			return model.WrapCLIError(model.ExitInvalidAnnotation,
				fmt.Sprintf("failed to scan %s", p), err)
		}

		if !flags.strict {
			kept := script.Filter(model.KindRepository, model.KindDependsOn)
			if dropped := len(script.Annotations) - len(kept.Annotations); dropped > 0 {
				logger.Debug("Skipping unrelated annotations",
					zap.String("script", p),
					zap.Int("count", dropped),
				)
			}
			script = kept
		}

		result, err := r.ResolveFromAnnotations(ctx, script)
		if err != nil {
			return model.WrapCLIError(model.ExitInvalidAnnotation,
				fmt.Sprintf("failed to process %s", p), err)
		}

		report := scriptReport{
			Script:      p,
			Added:       r.PopAddedClasspath(),
			Diagnostics: result.Diagnostics,
		}
		failed += len(result.Diagnostics)
		classpath = append(classpath, report.Added...)
		reports = append(reports, report)
	}

	// Step 4: Output results in the appropriate format.
	if err := printResolveResult(stdout, stderr, reports, classpath, flags.separator); err != nil {
		return err
	}

	if failed > 0 {
		return model.NewCLIError(model.ExitResolutionFailed,
			fmt.Sprintf("%d %s could not be resolved", failed, plural(failed, "dependency", "dependencies")))
	}
	return nil
}

// printResolveResult outputs the resolve result in text or JSON format,
// depending on the global --json flag.
func printResolveResult(stdout, stderr io.Writer, reports []scriptReport, classpath []string, separator string) error {
	if IsJSONOutput() {
		return printResolveResultJSON(stdout, reports, classpath)
	}
	printResolveResultText(stdout, stderr, reports, classpath, separator)
	return nil
}

// printResolveResultJSON outputs every script report and the combined
// classpath as one JSON document.
func printResolveResultJSON(w io.Writer, reports []scriptReport, classpath []string) error {
	type resultJSON struct {
		Scripts   []scriptReport `json:"scripts"`
		Classpath []string       `json:"classpath"`
	}

	for i := range reports {
		reports[i].Problems = toDiagnosticJSON(reports[i].Diagnostics)
	}
	return printJSON(w, resultJSON{Scripts: reports, Classpath: classpath})
}

// printResolveResultText prints diagnostics to stderr and the combined
// classpath as a single line to stdout, so the output can be captured
// directly into a -cp argument.
func printResolveResultText(stdout, stderr io.Writer, reports []scriptReport, classpath []string, separator string) {
	for _, rep := range reports {
		for _, d := range rep.Diagnostics {
			fmt.Fprintln(stderr, FormatDiagnostic(d))
		}
	}
	if len(classpath) > 0 {
		fmt.Fprintln(stdout, strings.Join(classpath, separator))
	}
}

// FormatDiagnostic renders a diagnostic for terminal output. Multi-line
// messages are indented under the first line.
//
// Example:
//
//	error: cell.kts:3: Failed to resolve a:b:1:
//	    not found in https://repo.maven.apache.org/maven2/
func FormatDiagnostic(d model.Diagnostic) string {
	sev := d.Severity
	if sev == "" {
		sev = model.SeverityError
	}

	var b strings.Builder
	b.WriteString(sev.String())
	b.WriteString(": ")
	if d.Location != "" {
		b.WriteString(d.Location)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(d.Message, "\n", "\n    "))
	if d.Err != nil {
		fmt.Fprintf(&b, "\n    caused by: %v", d.Err)
	}
	return b.String()
}

func toDiagnosticJSON(diags []model.Diagnostic) []diagnosticJSON {
	if len(diags) == 0 {
		return nil
	}
	out := make([]diagnosticJSON, 0, len(diags))
	for _, d := range diags {
		entry := diagnosticJSON{
			Message:  d.Message,
			Severity: d.Severity.String(),
			Location: d.Location,
		}
		if d.Err != nil {
			entry.Detail = d.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
