// Package cli — scan.go implements the "scriptdeps scan" command.
//
// The scan command only reads annotations; it never contacts a repository.
// It is useful for checking what resolve would see, including annotation
// kinds that resolve ignores unless --strict is given.
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/scriptdeps/internal/annotation"
	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

// NewScanCommand creates the "scan" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <script>...",
		Short: "List the file annotations found in scripts",
		Long: `List every @file: annotation found in the given scripts.

Examples:
  scriptdeps scan analysis.main.kts
  scriptdeps scan --json cell1.kts cell2.kts`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

// runScan is the main logic function for the scan command.
func runScan(w io.Writer, paths []string) error {
	scripts := make([]model.Script, 0, len(paths))
	for _, p := range paths {
		script, err := annotation.ParseFile(p)
		if err != nil {
			if isNotExist(err) {
				return model.WrapCLIError(model.ExitScriptNotFound,
					fmt.Sprintf("script not found: %s", p), err)
			}
			return model.WrapCLIError(model.ExitInvalidAnnotation,
				fmt.Sprintf("failed to scan %s", p), err)
		}
		scripts = append(scripts, script)
	}

	if IsJSONOutput() {
		type resultJSON struct {
			Scripts []model.Script `json:"scripts"`
		}
		return printJSON(w, resultJSON{Scripts: scripts})
	}
	printScanResultText(w, scripts)
	return nil
}

// printScanResultText outputs annotations as a text table.
//
// The table format is:
//
//	SCRIPT          LINE  KIND          VALUE
//	cell1.kts       2     Repository    https://repo.maven.apache.org/maven2
//	cell1.kts       4     DependsOn     org.jetbrains.kotlinx:kotlinx-coroutines-core:1.7.3
//	cell1.kts       6     JvmName*      Cell1
//
// Kinds that resolve does not understand are marked with "*".
func printScanResultText(w io.Writer, scripts []model.Script) {
	total := 0
	for _, s := range scripts {
		total += len(s.Annotations)
	}
	if total == 0 {
		fmt.Fprintln(w, "No file annotations found.")
		return
	}

	fmt.Fprintf(w, "%-24s %-5s %-13s %s\n", "SCRIPT", "LINE", "KIND", "VALUE")
	for _, s := range scripts {
		for _, a := range s.Annotations {
			fmt.Fprintf(w, "%-24s %-5d %-13s %s\n", s.Name, a.Line, FormatKind(a.Kind), a.Value)
		}
	}
}

// FormatKind returns the kind name, suffixed with "*" when the resolver
// does not understand it.
func FormatKind(kind model.AnnotationKind) string {
	if kind.IsValid() {
		return kind.String()
	}
	return kind.String() + "*"
}

// isNotExist reports whether err means a file is missing.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
