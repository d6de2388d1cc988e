package maven

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/scriptdeps/internal/deps"
	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

const (
	// CentralURL is used when no repository has been registered.
	CentralURL = "https://repo.maven.apache.org/maven2/"

	// DefaultTimeout bounds a single file transfer.
	DefaultTimeout = 60 * time.Second

	// DefaultConcurrency is the number of parallel artifact downloads.
	DefaultConcurrency = 4

	// maxDepth bounds the transitive dependency walk.
	maxDepth = 16

	// maxParentDepth bounds parent POM and BOM chains.
	maxParentDepth = 10
)

// Options configures a Resolver. Zero values select defaults.
type Options struct {
	// CacheDir is the root of the local artifact cache.
	CacheDir string

	// HTTPClient is used for http and https repositories.
	HTTPClient *http.Client

	// Timeout bounds each file transfer.
	Timeout time.Duration

	// MaxArtifactSize rejects larger downloads. Zero means unlimited.
	MaxArtifactSize int64

	// Concurrency is the number of parallel artifact downloads.
	Concurrency int

	Logger *zap.Logger
}

// Resolver resolves Maven coordinates, including their runtime
// dependencies, against registered repositories.
type Resolver struct {
	cacheDir    string
	maxSize     int64
	concurrency int
	fetch       *fetcher
	logger      *zap.Logger

	mu    sync.RWMutex
	repos []string
}

// New creates a Resolver with no repositories registered.
func New(opts Options) *Resolver {
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "scriptdeps", "maven")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Resolver{
		cacheDir:    opts.CacheDir,
		maxSize:     opts.MaxArtifactSize,
		concurrency: opts.Concurrency,
		fetch:       &fetcher{client: opts.HTTPClient, timeout: opts.Timeout},
		logger:      opts.Logger.Named("maven"),
	}
}

// AcceptsRepository accepts http and https URLs with a host, and file URLs.
func (r *Resolver) AcceptsRepository(repo string) bool {
	u, err := url.Parse(strings.TrimSpace(repo))
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Path != ""
	default:
		return false
	}
}

// AddRepository registers a repository URL. Duplicates are ignored.
func (r *Resolver) AddRepository(repo string) error {
	if !r.AcceptsRepository(repo) {
		return fmt.Errorf("unsupported maven repository %q", repo)
	}
	normalized := strings.TrimRight(strings.TrimSpace(repo), "/") + "/"

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.repos {
		if existing == normalized {
			return nil
		}
	}
	r.repos = append(r.repos, normalized)
	return nil
}

// Repositories returns the repositories that Resolve will search, in order.
// Maven Central is returned when none has been registered.
func (r *Resolver) Repositories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.repos) == 0 {
		return []string{CentralURL}
	}
	return append([]string(nil), r.repos...)
}

// AcceptsArtifact reports whether coord is a Maven coordinate.
func (r *Resolver) AcceptsArtifact(coord string) bool {
	_, err := ParseCoordinate(coord)
	return err == nil
}

// Resolve downloads coord and its runtime dependencies and returns the
// cached file paths, root first.
func (r *Resolver) Resolve(ctx context.Context, coord string) ([]string, error) {
	root, err := ParseCoordinate(coord)
	if err != nil {
		return nil, deps.NewResolveError(coord, err.Error())
	}

	s := &session{
		r:     r,
		repos: r.Repositories(),
		poms:  map[string]*effectivePOM{},
	}

	order, err := s.walk(ctx, root)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Dependency graph walked",
		zap.String("coordinate", coord),
		zap.Int("artifacts", len(order)))

	return s.downloadAll(ctx, coord, order)
}

// CacheDir returns the root of the local artifact cache.
func (r *Resolver) CacheDir() string {
	return r.cacheDir
}

func (r *Resolver) cachePath(relPath string) string {
	return filepath.Join(r.cacheDir, filepath.FromSlash(relPath))
}

// session holds the state of a single Resolve call.
type session struct {
	r     *Resolver
	repos []string
	// poms caches effective POMs by group:artifact:version. A nil entry
	// records that no repository has the POM.
	poms map[string]*effectivePOM
}

type walkNode struct {
	coord      Coordinate
	depth      int
	exclusions []pomExclusion
}

// walk visits the dependency graph breadth first and returns every
// coordinate to download, root first. The first version reached for a key
// wins.
func (s *session) walk(ctx context.Context, root Coordinate) ([]Coordinate, error) {
	queue := []walkNode{{coord: root}}
	seen := map[string]bool{root.Key(): true}
	var order []Coordinate

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		eff, err := s.loadPOM(ctx, n.coord, 0)
		if err != nil {
			if errors.Is(err, errNotFound) {
				// Artifacts without a POM are resolved without dependencies.
				s.r.logger.Debug("No POM found", zap.String("artifact", n.coord.String()))
				order = append(order, n.coord)
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, deps.NewResolveError(root.String(),
				fmt.Sprintf("failed to read POM for %s: %v", n.coord, err))
		}

		c := n.coord
		if c.Packaging == "" && eff.packaging == "pom" {
			c.Packaging = "pom"
		}
		order = append(order, c)

		if n.depth >= maxDepth {
			s.r.logger.Warn("Dependency depth limit reached",
				zap.String("artifact", c.String()),
				zap.Int("depth", n.depth))
			continue
		}

		for _, d := range eff.deps {
			if !d.isRuntime() || isExcluded(n.exclusions, d) {
				continue
			}

			version := eff.versionFor(d)
			if version == "" {
				s.r.logger.Warn("Skipping dependency without version",
					zap.String("dependency", d.key()),
					zap.String("declaredBy", c.String()))
				continue
			}
			if isVersionRange(version) {
				s.r.logger.Warn("Skipping dependency with version range",
					zap.String("dependency", d.key()),
					zap.String("range", version))
				continue
			}

			child := Coordinate{
				GroupID:    d.GroupID,
				ArtifactID: d.ArtifactID,
				Packaging:  d.Type,
				Classifier: d.Classifier,
				Version:    version,
			}
			if child.Packaging == "jar" {
				child.Packaging = ""
			}
			if seen[child.Key()] {
				continue
			}
			seen[child.Key()] = true

			exclusions := append(append([]pomExclusion(nil), n.exclusions...), d.Exclusions...)
			queue = append(queue, walkNode{coord: child, depth: n.depth + 1, exclusions: exclusions})
		}
	}
	return order, nil
}

func isExcluded(exclusions []pomExclusion, d pomDependency) bool {
	for _, e := range exclusions {
		groupMatch := e.GroupID == "*" || e.GroupID == d.GroupID
		artifactMatch := e.ArtifactID == "*" || e.ArtifactID == d.ArtifactID
		if groupMatch && artifactMatch {
			return true
		}
	}
	return false
}

// loadPOM returns the effective POM of c, loading parents and imported BOMs.
func (s *session) loadPOM(ctx context.Context, c Coordinate, depth int) (*effectivePOM, error) {
	id := c.GroupID + ":" + c.ArtifactID + ":" + c.Version
	if eff, ok := s.poms[id]; ok {
		if eff == nil {
			return nil, errNotFound
		}
		return eff, nil
	}
	if depth > maxParentDepth {
		return nil, fmt.Errorf("parent chain of %s is deeper than %d", c, maxParentDepth)
	}

	data, err := s.fetchPOM(ctx, c)
	if err != nil {
		if errors.Is(err, errNotFound) {
			s.poms[id] = nil
		}
		return nil, err
	}
	p, err := parsePOM(data)
	if err != nil {
		return nil, err
	}

	var parent *effectivePOM
	if p.Parent != nil {
		pc := Coordinate{GroupID: p.Parent.GroupID, ArtifactID: p.Parent.ArtifactID, Packaging: "pom", Version: p.Parent.Version}
		parent, err = s.loadPOM(ctx, pc, depth+1)
		if err != nil && !errors.Is(err, errNotFound) {
			return nil, err
		}
		if parent == nil {
			s.r.logger.Warn("Parent POM not found", zap.String("parent", pc.String()), zap.String("child", c.String()))
		}
	}

	eff := merge(parent, p)
	for _, bom := range importedBOMs(p, eff) {
		imported, err := s.loadPOM(ctx, bom, depth+1)
		if err != nil {
			if errors.Is(err, errNotFound) {
				s.r.logger.Warn("Imported BOM not found", zap.String("bom", bom.String()))
				continue
			}
			return nil, err
		}
		eff.addImported(imported.managed)
	}

	s.poms[id] = eff
	return eff, nil
}

// fetchPOM reads the POM from the cache or the first repository that has it.
func (s *session) fetchPOM(ctx context.Context, c Coordinate) ([]byte, error) {
	cached := s.r.cachePath(c.POMPath())
	if data, err := os.ReadFile(cached); err == nil {
		return data, nil
	}

	var lastErr error
	for _, repo := range s.repos {
		data, err := s.r.fetch.readAll(ctx, repo, c.POMPath())
		if err == nil {
			if _, werr := writeAtomic(cached, bytes.NewReader(data), 0); werr != nil {
				s.r.logger.Warn("Failed to cache POM", zap.String("path", cached), zap.Error(werr))
			}
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, errNotFound) {
			s.r.logger.Debug("POM fetch failed", zap.String("repository", repo), zap.Error(err))
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errNotFound
}

// downloadAll fetches every non-POM artifact concurrently and returns the
// file paths in walk order. Missing artifacts are reported together.
func (s *session) downloadAll(ctx context.Context, coord string, order []Coordinate) ([]string, error) {
	files := make([]string, len(order))

	var mu sync.Mutex
	var reports []model.Diagnostic

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.r.concurrency)
	for i, c := range order {
		if c.IsPOM() {
			continue
		}
		i, c := i, c
		g.Go(func() error {
			path, err := s.fetchArtifact(gctx, c)
			if err != nil {
				if re, ok := deps.AsResolveError(err); ok {
					mu.Lock()
					reports = append(reports, re.Reports...)
					mu.Unlock()
					return nil
				}
				return err
			}
			files[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(reports) > 0 {
		return nil, &deps.ResolveError{Coordinate: coord, Reports: reports}
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		if f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// fetchArtifact returns the cached artifact path, downloading it from the
// first repository that has it.
func (s *session) fetchArtifact(ctx context.Context, c Coordinate) (string, error) {
	dest := s.r.cachePath(c.ArtifactPath())
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		s.r.logger.Debug("Using cached artifact", zap.String("path", dest))
		return dest, nil
	}

	var reports []string
	for _, repo := range s.repos {
		err := s.download(ctx, repo, c, dest)
		if err == nil {
			return dest, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, errNotFound) {
			reports = append(reports, fmt.Sprintf("%s not found in %s", c, repo))
			continue
		}
		reports = append(reports, fmt.Sprintf("failed to download %s from %s: %v", c, repo, err))
	}
	return "", deps.NewResolveError(c.String(), reports...)
}

func (s *session) download(ctx context.Context, repo string, c Coordinate, dest string) error {
	rc, size, err := s.r.fetch.open(ctx, repo, c.ArtifactPath())
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if s.r.maxSize > 0 && size > s.r.maxSize {
		return fmt.Errorf("artifact is %s, larger than the %s limit",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.r.maxSize)))
	}

	n, err := writeAtomic(dest, rc, s.r.maxSize)
	if err != nil {
		return err
	}

	s.r.logger.Info("Downloaded artifact",
		zap.String("artifact", c.String()),
		zap.String("repository", repo),
		zap.String("size", humanize.Bytes(uint64(n))))
	return nil
}

// writeAtomic copies r to dest through a temporary file in the same
// directory and renames it into place. A positive limit rejects larger input.
func writeAtomic(dest string, r io.Reader, limit int64) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return 0, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return 0, err
	}
	if limit > 0 && n > limit {
		cleanup()
		return 0, fmt.Errorf("artifact exceeds the %s limit", humanize.Bytes(uint64(limit)))
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		cleanup()
		return 0, err
	}
	return n, nil
}
