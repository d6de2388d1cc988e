package deps

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem resolves artifacts that are plain local file paths.
//
// Repositories are local directories, given either as a path or as a
// file:// URL. A relative artifact path is looked up in each repository in
// registration order, then in the working directory.
type Filesystem struct {
	// repos holds absolute directory paths in registration order.
	repos []string
}

// NewFilesystem creates a Filesystem resolver with no repositories.
func NewFilesystem() *Filesystem {
	return &Filesystem{}
}

// AcceptsRepository reports whether repo names an existing directory.
func (f *Filesystem) AcceptsRepository(repo string) bool {
	dir, ok := localDir(repo)
	if !ok {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// AddRepository registers a local directory. Duplicates are ignored.
func (f *Filesystem) AddRepository(repo string) error {
	dir, ok := localDir(repo)
	if !ok {
		return fmt.Errorf("not a local directory: %q", repo)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve repository path %q: %w", repo, err)
	}
	for _, existing := range f.repos {
		if existing == abs {
			return nil
		}
	}
	f.repos = append(f.repos, abs)
	return nil
}

// Repositories returns the registered directories.
func (f *Filesystem) Repositories() []string {
	return append([]string(nil), f.repos...)
}

// AcceptsArtifact accepts any non-blank coordinate. Whether it names an
// existing file is only known at Resolve time.
func (f *Filesystem) AcceptsArtifact(coord string) bool {
	return strings.TrimSpace(coord) != ""
}

// Resolve returns the absolute path of the file named by coord.
func (f *Filesystem) Resolve(ctx context.Context, coord string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := coord
	if p, ok := localDir(coord); ok {
		path = p
	}

	if filepath.IsAbs(path) {
		if pathExists(path) {
			return []string{filepath.Clean(path)}, nil
		}
		return nil, NewResolveError(coord, fmt.Sprintf("file '%s' not found", path))
	}

	for _, repo := range f.repos {
		candidate := filepath.Join(repo, path)
		if pathExists(candidate) {
			return []string{candidate}, nil
		}
	}

	// Fall back to the working directory, matching how scripts refer to
	// files next to themselves.
	if pathExists(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return []string{abs}, nil
	}

	return nil, NewResolveError(coord, fmt.Sprintf("file '%s' not found in %d local repositories or the working directory", coord, len(f.repos)))
}

// localDir converts a repository or artifact string to a filesystem path.
// file:// URLs are unwrapped; other URL schemes are rejected; anything else
// is taken as a path.
func localDir(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if !strings.Contains(s, "://") {
		return s, true
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

// pathExists reports whether path exists. Directories count: a directory
// of classes is a valid classpath entry.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
