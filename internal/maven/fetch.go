package maven

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// errNotFound marks a file that a repository does not have. The resolver
// moves on to the next repository when it sees it.
var errNotFound = errors.New("not found")

// maxPOMSize bounds how much of a POM is read into memory.
const maxPOMSize = 8 << 20

// fetcher opens repository-relative paths on http(s) and file repositories.
type fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// open returns a reader for repo/relPath and its size, or -1 when unknown.
// The caller must close the reader.
func (f *fetcher) open(ctx context.Context, repo, relPath string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(repo)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid repository URL %q: %w", repo, err)
	}

	switch u.Scheme {
	case "file":
		return openFile(filepath.Join(filepath.FromSlash(u.Path), filepath.FromSlash(relPath)))
	case "http", "https":
		return f.openHTTP(ctx, strings.TrimRight(repo, "/")+"/"+relPath)
	default:
		return nil, 0, fmt.Errorf("unsupported repository scheme %q", u.Scheme)
	}
}

func openFile(path string) (io.ReadCloser, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errNotFound
		}
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, 0, errNotFound
	}
	return file, info.Size(), nil
}

func (f *fetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	// The timeout covers the whole transfer, so cancel only runs when the
	// body is closed.
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, 0, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, resp.ContentLength, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = resp.Body.Close()
		cancel()
		return nil, 0, errNotFound
	default:
		_ = resp.Body.Close()
		cancel()
		return nil, 0, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
}

// readAll fetches a small file fully into memory.
func (f *fetcher) readAll(ctx context.Context, repo, relPath string) ([]byte, error) {
	rc, _, err := f.open(ctx, repo, relPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxPOMSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPOMSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", relPath, maxPOMSize)
	}
	return data, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
