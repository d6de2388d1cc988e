// Package model defines the domain types and value objects for the
// scriptdeps CLI.
//
// This package contains pure data structures with no external dependencies.
// Annotations, scripts, diagnostics and resolve results are transient
// representations built for a single resolution pass; nothing here is
// persisted.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
