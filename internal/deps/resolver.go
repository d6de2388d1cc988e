package deps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

// Resolver is implemented by every dependency resolver engine.
//
// Repository registration is two-step: callers ask AcceptsRepository first
// and only then AddRepository. TryAddRepository bundles both.
type Resolver interface {
	// AcceptsRepository reports whether the engine understands the given
	// repository location (a URL or a local directory).
	AcceptsRepository(repo string) bool

	// AddRepository registers a repository. It is only called after
	// AcceptsRepository returned true.
	AddRepository(repo string) error

	// AcceptsArtifact reports whether the engine can attempt to resolve
	// the coordinate at all.
	AcceptsArtifact(coord string) bool

	// Resolve returns the files for the coordinate. An expected failure is
	// reported as *ResolveError; any other error is unexpected.
	Resolve(ctx context.Context, coord string) ([]string, error)
}

// ResolveError is the failure result of a resolver engine. It carries one
// diagnostic per problem encountered, e.g. one per repository tried.
type ResolveError struct {
	// Coordinate is the artifact that could not be resolved.
	Coordinate string

	// Reports holds the individual failure reasons.
	Reports []model.Diagnostic
}

// Error joins the report messages after a one-line summary.
func (e *ResolveError) Error() string {
	if len(e.Reports) == 0 {
		return fmt.Sprintf("failed to resolve %s", e.Coordinate)
	}
	return fmt.Sprintf("failed to resolve %s: %s", e.Coordinate, strings.Join(e.Messages(), "; "))
}

// Messages returns the message of every report, in order.
func (e *ResolveError) Messages() []string {
	msgs := make([]string, 0, len(e.Reports))
	for _, r := range e.Reports {
		msgs = append(msgs, r.Message)
	}
	return msgs
}

// NewResolveError builds a ResolveError from plain messages.
func NewResolveError(coord string, messages ...string) *ResolveError {
	reports := make([]model.Diagnostic, 0, len(messages))
	for _, m := range messages {
		reports = append(reports, model.NewDiagnostic(m))
	}
	return &ResolveError{Coordinate: coord, Reports: reports}
}

// AsResolveError extracts a *ResolveError from an error chain.
func AsResolveError(err error) (*ResolveError, bool) {
	var re *ResolveError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// TryAddRepository registers repo with r if r accepts it. It returns false
// when the repository is not accepted or registration fails.
func TryAddRepository(r Resolver, repo string) bool {
	if !r.AcceptsRepository(repo) {
		return false
	}
	return r.AddRepository(repo) == nil
}
