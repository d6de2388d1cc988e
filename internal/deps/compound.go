package deps

import (
	"context"
	"fmt"
)

// Compound delegates to an ordered list of engines.
//
// Repositories are registered with every engine that accepts them.
// Artifacts are resolved by the first accepting engine that succeeds;
// the order of engines is the order passed to NewCompound.
type Compound struct {
	resolvers []Resolver
}

// NewCompound creates a Compound over the given engines.
func NewCompound(resolvers ...Resolver) *Compound {
	return &Compound{resolvers: resolvers}
}

// AcceptsRepository reports whether any engine accepts repo.
func (c *Compound) AcceptsRepository(repo string) bool {
	for _, r := range c.resolvers {
		if r.AcceptsRepository(repo) {
			return true
		}
	}
	return false
}

// AddRepository adds repo to every engine that accepts it. It fails if no
// engine accepted the repository or if any accepting engine failed to add it.
func (c *Compound) AddRepository(repo string) error {
	added := false
	for _, r := range c.resolvers {
		if !r.AcceptsRepository(repo) {
			continue
		}
		if err := r.AddRepository(repo); err != nil {
			return fmt.Errorf("failed to add repository %q: %w", repo, err)
		}
		added = true
	}
	if !added {
		return fmt.Errorf("no resolver accepts repository %q", repo)
	}
	return nil
}

// AcceptsArtifact reports whether any engine accepts coord.
func (c *Compound) AcceptsArtifact(coord string) bool {
	for _, r := range c.resolvers {
		if r.AcceptsArtifact(coord) {
			return true
		}
	}
	return false
}

// Resolve tries each accepting engine in order and returns the first
// success. Expected failures are collected and the next engine is tried;
// an unexpected error stops the search and is returned as-is.
func (c *Compound) Resolve(ctx context.Context, coord string) ([]string, error) {
	failure := &ResolveError{Coordinate: coord}
	tried := false

	for _, r := range c.resolvers {
		if !r.AcceptsArtifact(coord) {
			continue
		}
		tried = true

		files, err := r.Resolve(ctx, coord)
		if err == nil {
			return files, nil
		}

		re, ok := AsResolveError(err)
		if !ok {
			return nil, err
		}
		failure.Reports = append(failure.Reports, re.Reports...)
	}

	if !tried {
		return nil, NewResolveError(coord, fmt.Sprintf("no suitable resolver found for %q", coord))
	}
	return nil, failure
}
