package maven

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/scriptdeps/internal/deps"
)

// fakeRepo serves a Maven repository layout from memory and records which
// paths were requested.
type fakeRepo struct {
	mu       sync.Mutex
	files    map[string]string
	requests []string
	server   *httptest.Server
}

func newFakeRepo(t *testing.T, files map[string]string) *fakeRepo {
	t.Helper()

	repo := &fakeRepo{files: files}
	repo.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/maven2/")

		repo.mu.Lock()
		repo.requests = append(repo.requests, rel)
		body, ok := repo.files[rel]
		repo.mu.Unlock()

		if rel == "broken/x/1/x-1.jar" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(repo.server.Close)
	return repo
}

func (f *fakeRepo) URL() string {
	return f.server.URL + "/maven2"
}

func (f *fakeRepo) requested(rel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == rel {
			n++
		}
	}
	return n
}

func simplePOM(group, artifact, version, deps string) string {
	return `<project><groupId>` + group + `</groupId><artifactId>` + artifact +
		`</artifactId><version>` + version + `</version><dependencies>` + deps +
		`</dependencies></project>`
}

func dep(group, artifact, version string, extra ...string) string {
	return `<dependency><groupId>` + group + `</groupId><artifactId>` + artifact +
		`</artifactId><version>` + version + `</version>` + strings.Join(extra, "") + `</dependency>`
}

// newTestResolver creates a Resolver caching into a temp dir and bound to repo.
func newTestResolver(t *testing.T, repos ...*fakeRepo) *Resolver {
	t.Helper()

	r := New(Options{CacheDir: t.TempDir()})
	for _, repo := range repos {
		require.NoError(t, r.AddRepository(repo.URL()))
	}
	return r
}

// TestResolver_AcceptsRepository covers the supported URL schemes.
func TestResolver_AcceptsRepository(t *testing.T) {
	r := New(Options{CacheDir: t.TempDir()})

	assert.True(t, r.AcceptsRepository("https://repo.maven.apache.org/maven2"))
	assert.True(t, r.AcceptsRepository("http://localhost:8081/repository/releases/"))
	assert.True(t, r.AcceptsRepository("file:///home/user/.m2/repository"))
	assert.False(t, r.AcceptsRepository("https://"))
	assert.False(t, r.AcceptsRepository("ftp://example.com/repo"))
	assert.False(t, r.AcceptsRepository("/home/user/libs"))
	assert.False(t, r.AcceptsRepository("not a url"))
}

// TestResolver_Repositories verifies normalization, de-duplication and the
// Maven Central default.
func TestResolver_Repositories(t *testing.T) {
	r := New(Options{CacheDir: t.TempDir()})
	assert.Equal(t, []string{CentralURL}, r.Repositories())

	require.NoError(t, r.AddRepository("https://a.example.com/maven"))
	require.NoError(t, r.AddRepository("https://a.example.com/maven/"))
	require.NoError(t, r.AddRepository("https://b.example.com/maven"))
	assert.Equal(t, []string{"https://a.example.com/maven/", "https://b.example.com/maven/"}, r.Repositories())

	assert.Error(t, r.AddRepository("ftp://x"))
}

// TestResolver_ResolveTransitive verifies the breadth-first walk: runtime
// dependencies are downloaded, test and optional ones are skipped, and the
// first version of a library wins.
func TestResolver_ResolveTransitive(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{
		"com/acme/app/1.0/app-1.0.pom": simplePOM("com.acme", "app", "1.0",
			dep("com.acme", "core", "2.0")+
				dep("com.acme", "log", "1.1")+
				dep("junit", "junit", "4.13", "<scope>test</scope>")+
				dep("com.acme", "extra", "1.0", "<optional>true</optional>")),
		"com/acme/app/1.0/app-1.0.jar":   "app",
		"com/acme/core/2.0/core-2.0.pom": simplePOM("com.acme", "core", "2.0", dep("com.acme", "log", "0.9")),
		"com/acme/core/2.0/core-2.0.jar": "core",
		"com/acme/log/1.1/log-1.1.jar":   "log",
	})
	r := newTestResolver(t, repo)

	files, err := r.Resolve(context.Background(), "com.acme:app:1.0")
	require.NoError(t, err)

	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(r.CacheDir(), "com/acme/app/1.0/app-1.0.jar"), files[0])
	assert.Equal(t, filepath.Join(r.CacheDir(), "com/acme/core/2.0/core-2.0.jar"), files[1])
	assert.Equal(t, filepath.Join(r.CacheDir(), "com/acme/log/1.1/log-1.1.jar"), files[2])

	data, err := os.ReadFile(files[1])
	require.NoError(t, err)
	assert.Equal(t, "core", string(data))

	assert.Zero(t, repo.requested("com/acme/log/0.9/log-0.9.jar"), "nearest version wins")
	assert.Zero(t, repo.requested("junit/junit/4.13/junit-4.13.jar"), "test scope is skipped")
	assert.Zero(t, repo.requested("com/acme/extra/1.0/extra-1.0.jar"), "optional dependencies are skipped")
}

// TestResolver_ResolveUsesCache verifies that a second resolution is served
// from the local cache without contacting the repository.
func TestResolver_ResolveUsesCache(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{
		"a/b/1/b-1.pom": simplePOM("a", "b", "1", ""),
		"a/b/1/b-1.jar": "b",
	})
	r := newTestResolver(t, repo)

	first, err := r.Resolve(context.Background(), "a:b:1")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "a:b:1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.requested("a/b/1/b-1.jar"))
	assert.Equal(t, 1, repo.requested("a/b/1/b-1.pom"))
}

// TestResolver_ResolveFallsBackToSecondRepository verifies repository order.
func TestResolver_ResolveFallsBackToSecondRepository(t *testing.T) {
	empty := newFakeRepo(t, map[string]string{})
	full := newFakeRepo(t, map[string]string{"a/b/1/b-1.jar": "b"})
	r := newTestResolver(t, empty, full)

	files, err := r.Resolve(context.Background(), "a:b:1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 1, empty.requested("a/b/1/b-1.jar"))
}

// TestResolver_ResolveNotFound verifies that a missing artifact is an
// expected failure naming every repository tried.
func TestResolver_ResolveNotFound(t *testing.T) {
	first := newFakeRepo(t, map[string]string{})
	second := newFakeRepo(t, map[string]string{})
	r := newTestResolver(t, first, second)

	_, err := r.Resolve(context.Background(), "com.acme:missing:1.0")
	re, ok := deps.AsResolveError(err)
	require.True(t, ok, "expected *deps.ResolveError, got %v", err)
	assert.Equal(t, "com.acme:missing:1.0", re.Coordinate)
	require.Len(t, re.Reports, 2)
	assert.Contains(t, re.Reports[0].Message, first.URL())
	assert.Contains(t, re.Reports[1].Message, second.URL())
}

// TestResolver_ResolveServerError verifies that a repository error is
// reported rather than treated as not-found silently.
func TestResolver_ResolveServerError(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{})
	r := newTestResolver(t, repo)

	_, err := r.Resolve(context.Background(), "broken:x:1")
	re, ok := deps.AsResolveError(err)
	require.True(t, ok)
	require.Len(t, re.Reports, 1)
	assert.Contains(t, re.Reports[0].Message, "500")
}

// TestResolver_ResolveMissingTransitive verifies that a missing transitive
// artifact fails the whole coordinate.
func TestResolver_ResolveMissingTransitive(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{
		"a/b/1/b-1.pom": simplePOM("a", "b", "1", dep("a", "gone", "1")),
		"a/b/1/b-1.jar": "b",
	})
	r := newTestResolver(t, repo)

	_, err := r.Resolve(context.Background(), "a:b:1")
	re, ok := deps.AsResolveError(err)
	require.True(t, ok)
	assert.Equal(t, "a:b:1", re.Coordinate)
	require.Len(t, re.Reports, 1)
	assert.Contains(t, re.Reports[0].Message, "a:gone:1")
}

// TestResolver_ResolveParentAndExclusions verifies parent POM inheritance,
// managed versions and exclusions during the walk.
func TestResolver_ResolveParentAndExclusions(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{
		"a/parent/1/parent-1.pom": `<project><groupId>a</groupId><artifactId>parent</artifactId><version>1</version>
			<packaging>pom</packaging>
			<dependencyManagement><dependencies>` + dep("a", "managed", "7") + `</dependencies></dependencyManagement>
			</project>`,
		"a/app/1/app-1.pom": `<project><parent><groupId>a</groupId><artifactId>parent</artifactId><version>1</version></parent>
			<artifactId>app</artifactId><dependencies>
			<dependency><groupId>a</groupId><artifactId>managed</artifactId></dependency>` +
			dep("a", "lib", "1", "<exclusions><exclusion><groupId>a</groupId><artifactId>excluded</artifactId></exclusion></exclusions>") +
			`</dependencies></project>`,
		"a/app/1/app-1.jar":         "app",
		"a/managed/7/managed-7.jar": "managed",
		"a/lib/1/lib-1.pom":         simplePOM("a", "lib", "1", dep("a", "excluded", "1")),
		"a/lib/1/lib-1.jar":         "lib",
	})
	r := newTestResolver(t, repo)

	files, err := r.Resolve(context.Background(), "a:app:1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, strings.HasSuffix(files[1], filepath.FromSlash("a/managed/7/managed-7.jar")))
	assert.Zero(t, repo.requested("a/excluded/1/excluded-1.jar"))
}

// TestResolver_ResolveParentPropertyOverride verifies that properties and
// the project version of the child apply to declarations inherited from
// the parent.
func TestResolver_ResolveParentPropertyOverride(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{
		"p/parent/1/parent-1.pom": `<project><groupId>p</groupId><artifactId>parent</artifactId><version>1</version>
			<packaging>pom</packaging>
			<properties><lib.version>1.0</lib.version></properties>
			<dependencyManagement><dependencies>` + dep("g", "lib", "${lib.version}") + `</dependencies></dependencyManagement>
			<dependencies>` + dep("g", "core", "${project.version}") + `</dependencies>
			</project>`,
		"p/app/2/app-2.pom": `<project><parent><groupId>p</groupId><artifactId>parent</artifactId><version>1</version></parent>
			<artifactId>app</artifactId><version>2</version>
			<properties><lib.version>2.0</lib.version></properties>
			<dependencies><dependency><groupId>g</groupId><artifactId>lib</artifactId></dependency></dependencies>
			</project>`,
		"p/app/2/app-2.jar":     "app",
		"g/lib/2.0/lib-2.0.jar": "lib",
		"g/core/2/core-2.jar":   "core",
	})
	r := newTestResolver(t, repo)

	files, err := r.Resolve(context.Background(), "p:app:2")
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"app-2.jar", "lib-2.0.jar", "core-2.jar"}, names)
	assert.Zero(t, repo.requested("g/lib/1.0/lib-1.0.jar"))
	assert.Zero(t, repo.requested("g/core/1/core-1.jar"))
}

// TestResolver_ResolvePOMPackaging verifies that pom-packaged artifacts
// contribute their dependencies but no file.
func TestResolver_ResolvePOMPackaging(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{
		"a/bom/1/bom-1.pom": `<project><groupId>a</groupId><artifactId>bom</artifactId><version>1</version>
			<packaging>pom</packaging><dependencies>` + dep("a", "x", "1") + `</dependencies></project>`,
		"a/x/1/x-1.jar": "x",
	})
	r := newTestResolver(t, repo)

	files, err := r.Resolve(context.Background(), "a:bom:1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "x-1.jar"))
	assert.Zero(t, repo.requested("a/bom/1/bom-1.jar"))
}

// TestResolver_ResolveMaxArtifactSize verifies that oversized downloads are
// rejected and not left in the cache.
func TestResolver_ResolveMaxArtifactSize(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{
		"a/big/1/big-1.jar": strings.Repeat("x", 1024),
	})
	r := New(Options{CacheDir: t.TempDir(), MaxArtifactSize: 100})
	require.NoError(t, r.AddRepository(repo.URL()))

	_, err := r.Resolve(context.Background(), "a:big:1")
	re, ok := deps.AsResolveError(err)
	require.True(t, ok)
	assert.Contains(t, re.Reports[0].Message, "limit")

	_, statErr := os.Stat(filepath.Join(r.CacheDir(), "a/big/1/big-1.jar"))
	assert.True(t, os.IsNotExist(statErr))
}

// TestResolver_ResolveFileRepository verifies that file:// repositories
// work without any HTTP server.
func TestResolver_ResolveFileRepository(t *testing.T) {
	repoDir := t.TempDir()
	jar := filepath.Join(repoDir, "a", "b", "1", "b-1.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(jar), 0o755))
	require.NoError(t, os.WriteFile(jar, []byte("b"), 0o644))

	r := New(Options{CacheDir: t.TempDir()})
	require.NoError(t, r.AddRepository("file://"+filepath.ToSlash(repoDir)))

	files, err := r.Resolve(context.Background(), "a:b:1")
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

// TestResolver_ResolveInvalidCoordinate verifies that an unparsable
// coordinate is an expected failure.
func TestResolver_ResolveInvalidCoordinate(t *testing.T) {
	r := New(Options{CacheDir: t.TempDir()})
	assert.False(t, r.AcceptsArtifact("libs/local.jar"))

	_, err := r.Resolve(context.Background(), "libs/local.jar")
	_, ok := deps.AsResolveError(err)
	assert.True(t, ok)
}

// TestResolver_ResolveCancelled verifies that cancellation is returned as
// an unexpected error, not folded into a ResolveError.
func TestResolver_ResolveCancelled(t *testing.T) {
	repo := newFakeRepo(t, map[string]string{"a/b/1/b-1.jar": "b"})
	r := newTestResolver(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "a:b:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
