package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const loadTimeout = 15 * time.Second

// Handle is an owned local copy of a fetched clip. Release removes the file
// and is idempotent; every code path that obtains a Handle must release it.
type Handle struct {
	path string

	mu       sync.Mutex
	released bool
}

func (h *Handle) Path() string {
	return h.path
}

func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Loader fetches a clip URI into a local file suitable for seeking.
// Failures wrap ErrFetchFailed or ErrLoadTimeout.
type Loader interface {
	Load(ctx context.Context, uri string) (*Handle, error)
}

// HTTPLoader buffers the entire remote object into a temp file before
// handing it to the decoder. Streaming straight into the decoder would stall
// the whole pipeline on a slow origin, so the fetch is fully materialized
// first.
type HTTPLoader struct {
	client  *http.Client
	tempDir string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewHTTPLoader(tempDir string, logger zerolog.Logger) *HTTPLoader {
	return &HTTPLoader{
		client:  &http.Client{},
		tempDir: tempDir,
		timeout: loadTimeout,
		logger:  logger.With().Str("component", "loader").Logger(),
	}
}

func (l *HTTPLoader) Load(ctx context.Context, uri string) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %v", ErrFetchFailed, uri, err)
	}

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(ctx, uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetchFailed, uri, resp.StatusCode)
	}

	if err := os.MkdirAll(l.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating temp dir: %v", ErrFetchFailed, err)
	}
	f, err := os.CreateTemp(l.tempDir, "segment-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp file: %v", ErrFetchFailed, err)
	}

	n, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err != nil || closeErr != nil {
		os.Remove(f.Name())
		if err == nil {
			err = closeErr
		}
		return nil, classifyFetchErr(ctx, uri, err)
	}

	l.logger.Debug().
		Str("uri", uri).
		Int64("bytes", n).
		Dur("elapsed", time.Since(start)).
		Str("path", filepath.Base(f.Name())).
		Msg("Fetched segment source")

	return &Handle{path: f.Name()}, nil
}

func classifyFetchErr(ctx context.Context, uri string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: fetching %s: %v", ErrLoadTimeout, uri, err)
	}
	return fmt.Errorf("%w: fetching %s: %v", ErrFetchFailed, uri, err)
}
