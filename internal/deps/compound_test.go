package deps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver is a scripted Resolver used to exercise Compound without
// touching the filesystem or network.
type fakeResolver struct {
	acceptRepo     func(string) bool
	acceptArtifact func(string) bool
	addErr         error
	files          map[string][]string
	errs           map[string]error

	added    []string
	resolved []string
}

func (f *fakeResolver) AcceptsRepository(repo string) bool {
	if f.acceptRepo == nil {
		return false
	}
	return f.acceptRepo(repo)
}

func (f *fakeResolver) AddRepository(repo string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, repo)
	return nil
}

func (f *fakeResolver) AcceptsArtifact(coord string) bool {
	if f.acceptArtifact == nil {
		return true
	}
	return f.acceptArtifact(coord)
}

func (f *fakeResolver) Resolve(_ context.Context, coord string) ([]string, error) {
	f.resolved = append(f.resolved, coord)
	if err, ok := f.errs[coord]; ok {
		return nil, err
	}
	if files, ok := f.files[coord]; ok {
		return files, nil
	}
	return nil, NewResolveError(coord, "not found: "+coord)
}

func acceptAll(string) bool  { return true }
func acceptNone(string) bool { return false }

// TestCompound_AddRepository verifies that a repository is registered with
// every accepting engine and rejected when no engine accepts it.
func TestCompound_AddRepository(t *testing.T) {
	first := &fakeResolver{acceptRepo: acceptAll}
	second := &fakeResolver{acceptRepo: acceptNone}
	third := &fakeResolver{acceptRepo: acceptAll}
	c := NewCompound(first, second, third)

	require.True(t, TryAddRepository(c, "https://repo.example.com"))
	assert.Equal(t, []string{"https://repo.example.com"}, first.added)
	assert.Empty(t, second.added)
	assert.Equal(t, []string{"https://repo.example.com"}, third.added)

	none := NewCompound(&fakeResolver{acceptRepo: acceptNone})
	assert.False(t, none.AcceptsRepository("ftp://x"))
	assert.False(t, TryAddRepository(none, "ftp://x"))
	assert.Error(t, none.AddRepository("ftp://x"))
}

// TestCompound_AddRepositoryFailure verifies that a failing engine makes
// TryAddRepository report false.
func TestCompound_AddRepositoryFailure(t *testing.T) {
	broken := &fakeResolver{acceptRepo: acceptAll, addErr: errors.New("disk full")}
	c := NewCompound(broken)

	err := c.AddRepository("/tmp/repo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, TryAddRepository(c, "/tmp/repo"))
}

// TestCompound_ResolveFirstSuccessWins verifies that the search stops at the
// first engine that resolves the coordinate.
func TestCompound_ResolveFirstSuccessWins(t *testing.T) {
	fs := &fakeResolver{}
	remote := &fakeResolver{files: map[string][]string{"a:b:1": {"/cache/b-1.jar"}}}
	unused := &fakeResolver{files: map[string][]string{"a:b:1": {"/other/b-1.jar"}}}
	c := NewCompound(fs, remote, unused)

	files, err := c.Resolve(context.Background(), "a:b:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/cache/b-1.jar"}, files)
	assert.Equal(t, []string{"a:b:1"}, fs.resolved, "earlier engine is tried first")
	assert.Empty(t, unused.resolved, "later engines are not consulted after success")
}

// TestCompound_ResolveCollectsReports verifies that failures from every
// accepting engine end up in a single ResolveError.
func TestCompound_ResolveCollectsReports(t *testing.T) {
	c := NewCompound(&fakeResolver{}, &fakeResolver{})

	_, err := c.Resolve(context.Background(), "x:y:1")
	re, ok := AsResolveError(err)
	require.True(t, ok, "expected *ResolveError, got %T", err)
	assert.Equal(t, "x:y:1", re.Coordinate)
	assert.Equal(t, []string{"not found: x:y:1", "not found: x:y:1"}, re.Messages())
}

// TestCompound_ResolveSkipsNonAccepting verifies that engines which do not
// accept the artifact are skipped, and that no accepting engine is itself
// a ResolveError.
func TestCompound_ResolveSkipsNonAccepting(t *testing.T) {
	skipped := &fakeResolver{acceptArtifact: acceptNone}
	c := NewCompound(skipped)

	assert.False(t, c.AcceptsArtifact("x"))
	_, err := c.Resolve(context.Background(), "x")
	re, ok := AsResolveError(err)
	require.True(t, ok)
	require.Len(t, re.Reports, 1)
	assert.Contains(t, re.Reports[0].Message, "no suitable resolver")
	assert.Empty(t, skipped.resolved)
}

// TestCompound_ResolveUnexpectedError verifies that an error which is not a
// ResolveError stops the search immediately.
func TestCompound_ResolveUnexpectedError(t *testing.T) {
	boom := errors.New("connection reset")
	first := &fakeResolver{errs: map[string]error{"a:b:1": boom}}
	second := &fakeResolver{files: map[string][]string{"a:b:1": {"/x.jar"}}}
	c := NewCompound(first, second)

	_, err := c.Resolve(context.Background(), "a:b:1")
	assert.ErrorIs(t, err, boom)
	_, isResolveErr := AsResolveError(err)
	assert.False(t, isResolveErr)
	assert.Empty(t, second.resolved)
}

// TestResolveError_Error covers both message forms.
func TestResolveError_Error(t *testing.T) {
	assert.Equal(t, "failed to resolve a:b:1", (&ResolveError{Coordinate: "a:b:1"}).Error())
	assert.Equal(t, "failed to resolve a:b:1: one; two", NewResolveError("a:b:1", "one", "two").Error())
}
