// Package cli implements the cobra-based CLI commands for scriptdeps.
//
// Each subcommand (resolve, scan, cache) is defined in its own file within
// this package. This file defines the root command that serves as the
// parent for all subcommands, handles global flags, and sets up the shared
// configuration and logger before any subcommand runs.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mmr-tortoise/scriptdeps/internal/config"
	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, all output uses structured JSON format for machine consumption.
	// When false (default), output uses human-readable text format.
	jsonOutput bool

	// verbose lowers the log level to debug regardless of the
	// configuration file.
	verbose bool

	// configPath points to an explicit configuration file. When empty,
	// the working directory is searched (see config.Find).
	configPath string
)

// Shared state initialized by the root command's PersistentPreRunE.
var (
	// cfg is the effective configuration for this invocation.
	cfg *config.Config

	// logger writes structured logs to stderr. It is a no-op logger until
	// PersistentPreRunE runs, so helpers are safe to call from tests.
	logger = zap.NewNop()
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action. It only provides
// help text and global flags. Actual functionality is provided by
// subcommands (resolve, scan, cache).
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		// Use is the one-line usage pattern shown in help output.
		Use:   "scriptdeps",
		Short: "Resolve script dependency annotations into a classpath",
		Long: `scriptdeps reads @file:Repository and @file:DependsOn annotations from
scripts and notebook cells and resolves them into a classpath.

Coordinates of the form group:artifact:version are downloaded, together with
their runtime dependencies, from Maven repositories. Anything else is looked
up as a file in the registered local directories.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// PersistentPreRunE runs before every subcommand. The configuration
		// is loaded first because it decides the log level.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			cfg = loaded

			built, err := buildLogger(cfg.LogLevel, verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = built
			logger.Debug("Configuration loaded",
				zap.String("path", configPath),
				zap.Strings("repositories", cfg.Repositories),
				zap.String("cacheDir", cfg.CacheDir),
			)
			return nil
		},
	}

	// PersistentFlags are inherited by all subcommands. This is the cobra
	// mechanism for global flags: any flag defined here is automatically
	// available in every subcommand without re-declaration.
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a config file (default: .scriptdeps.yaml, .scriptdeps.yml or .scriptdeps.json in the working directory)")

	// Register subcommands. Each subcommand is defined in its own file
	// (resolve.go, scan.go, cache.go) and returns a *cobra.Command.
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewScanCommand())
	rootCmd.AddCommand(NewCacheCommand())

	return rootCmd
}

// loadConfig loads the configuration named by --config, or the first
// configuration file found in the working directory, or the defaults.
func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	return config.LoadOrDefault(configPath, wd)
}

// buildLogger is replaced in tests to observe the logger's lifecycle.
var buildLogger = newLogger

// newLogger builds the process logger. Logs go to stderr as JSON so that
// stdout stays reserved for command output.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()

	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	return zcfg.Build()
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// It inspects errors returned by cobra commands and translates them
// into appropriate OS exit codes. CLIError types carry their own
// exit codes; other errors default to exit code 1.
func Execute(rootCmd *cobra.Command) {
	if code := run(rootCmd, os.Stderr); code != model.ExitSuccess {
		os.Exit(int(code))
	}
}

// run executes rootCmd, flushes the logger and returns the exit code.
// cobra skips PersistentPostRun when a command fails, so the flush happens
// here to cover every exit path.
func run(rootCmd *cobra.Command, stderr io.Writer) model.ExitCode {
	err := rootCmd.Execute()

	// Sync errors on stderr are expected on some platforms and are ignored.
	_ = logger.Sync()

	if err != nil {
		return reportError(stderr, err)
	}
	return model.ExitSuccess
}

// reportError prints err and returns the exit code it maps to.
func reportError(w io.Writer, err error) model.ExitCode {
	// errors.As finds a CLIError even when a command wrapped it further.
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, cliErr.Message, cliErr.Err)
		return cliErr.Code
	}

	// Generic error: exit with code 1.
	printError(w, err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout is
		// reserved for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
	} else {
		// Text format: "Error: <message>" on stderr.
		if underlying != nil {
			fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(w, "Error: %s\n", message)
		}
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
