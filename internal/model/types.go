// Package model defines the domain types for the scriptdeps CLI.
//
// Scripts declare their external libraries through file annotations such as
//
//	@file:Repository("https://repo.maven.apache.org/maven2")
//	@file:DependsOn("org.jetbrains.kotlinx:kotlinx-coroutines-core:1.7.3")
//
// The types in this package carry those annotations from the scanner to the
// resolver, and carry resolved classpath entries and diagnostics back out.
package model

import (
	"fmt"
	"strings"
)

// AnnotationKind identifies the type of a file annotation.
// Only KindRepository and KindDependsOn are understood by the resolver;
// any other kind is kept verbatim so the resolver can reject it.
type AnnotationKind string

const (
	// KindRepository registers an additional repository (a URL or a local
	// directory) with the underlying resolver engines.
	KindRepository AnnotationKind = "Repository"

	// KindDependsOn declares a dependency coordinate, either a Maven-style
	// "group:artifact:version" string or a path to a local file.
	KindDependsOn AnnotationKind = "DependsOn"
)

// String returns the string representation of AnnotationKind.
// This method satisfies the fmt.Stringer interface.
func (k AnnotationKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is one the resolver knows how to handle.
func (k AnnotationKind) IsValid() bool {
	switch k {
	case KindRepository, KindDependsOn:
		return true
	default:
		return false
	}
}

// ParseAnnotationKind converts a string to a known AnnotationKind.
// Matching is case-sensitive because annotation names in scripts are.
func ParseAnnotationKind(s string) (AnnotationKind, error) {
	kind := AnnotationKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid annotation kind: %q (valid: Repository, DependsOn)", s)
	}
	return kind, nil
}

// Annotation is a single file annotation argument found in a script.
// An annotation with several arguments (DependsOn accepts more than one)
// is split into one Annotation per argument, in declaration order.
type Annotation struct {
	// Kind is the annotation name, e.g. "DependsOn".
	Kind AnnotationKind `json:"kind"`

	// Value is the unquoted annotation argument.
	Value string `json:"value"`

	// Line is the 1-based source line the annotation was found on.
	// Zero when the annotation was constructed programmatically.
	Line int `json:"line,omitempty"`
}

// String renders the annotation in the same form it is written in scripts.
func (a Annotation) String() string {
	return fmt.Sprintf("@file:%s(%q)", a.Kind, a.Value)
}

// Script is the parsed view of a script: its name and the annotations it
// declares, in source order.
type Script struct {
	// Name identifies the script in logs and diagnostics (usually a path).
	Name string `json:"name"`

	// Annotations holds every file annotation found in the script.
	Annotations []Annotation `json:"annotations"`
}

// Filter returns a copy of the script that keeps only annotations of the
// given kinds. Order is preserved.
func (s Script) Filter(kinds ...AnnotationKind) Script {
	keep := make(map[AnnotationKind]bool, len(kinds))
	for _, k := range kinds {
		keep[k] = true
	}

	out := Script{Name: s.Name, Annotations: make([]Annotation, 0, len(s.Annotations))}
	for _, a := range s.Annotations {
		if keep[a.Kind] {
			out.Annotations = append(out.Annotations, a)
		}
	}
	return out
}

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// String returns the string representation of Severity.
func (s Severity) String() string {
	return string(s)
}

// Diagnostic is a non-fatal message describing a resolution problem.
// Diagnostics are collected during a resolution pass and surfaced together
// in a failed ResolveResult.
type Diagnostic struct {
	// Message is the human-readable description.
	Message string `json:"message"`

	// Severity defaults to SeverityError when empty.
	Severity Severity `json:"severity"`

	// Location optionally names where the problem originated
	// (a script name and line, or a repository URL).
	Location string `json:"location,omitempty"`

	// Err is the underlying error, if any. It is not serialized directly;
	// its text is rendered by String.
	Err error `json:"-"`
}

// NewDiagnostic creates an error-severity diagnostic.
func NewDiagnostic(message string) Diagnostic {
	return Diagnostic{Message: message, Severity: SeverityError}
}

// String renders the diagnostic as "[severity] location: message: err".
func (d Diagnostic) String() string {
	sev := d.Severity
	if sev == "" {
		sev = SeverityError
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", sev)
	if d.Location != "" {
		b.WriteString(d.Location)
		b.WriteString(": ")
	}
	b.WriteString(d.Message)
	if d.Err != nil {
		fmt.Fprintf(&b, ": %v", d.Err)
	}
	return b.String()
}

// ResolveResult is the outcome of resolving one script's annotations.
//
// A successful result carries the classpath and no diagnostics. A failed
// result carries every collected diagnostic; its Classpath is nil.
type ResolveResult struct {
	// Classpath holds resolved file paths in processing order.
	Classpath []string `json:"classpath"`

	// Diagnostics holds every non-fatal failure collected during the pass.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// IsSuccess reports whether the pass completed without diagnostics.
func (r *ResolveResult) IsSuccess() bool {
	return len(r.Diagnostics) == 0
}

// Success builds a successful result. A nil classpath is normalized to an
// empty slice so JSON output shows [] instead of null.
func Success(classpath []string) *ResolveResult {
	if classpath == nil {
		classpath = []string{}
	}
	return &ResolveResult{Classpath: classpath}
}

// Failure builds a failed result carrying the given diagnostics.
func Failure(diagnostics []Diagnostic) *ResolveResult {
	return &ResolveResult{Diagnostics: diagnostics}
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidAnnotation indicates a structurally invalid script:
	// an unknown annotation kind or an unusable repository argument.
	ExitInvalidAnnotation ExitCode = 2

	// ExitResolutionFailed indicates at least one dependency could not
	// be resolved. Diagnostics are printed before exiting.
	ExitResolutionFailed ExitCode = 3

	// ExitConfigError indicates the configuration file could not be
	// read, parsed or validated.
	ExitConfigError ExitCode = 4

	// ExitScriptNotFound indicates a script path given on the command
	// line does not exist.
	ExitScriptNotFound ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
