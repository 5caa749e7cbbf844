// Package fetch retrieves raw asset bytes from an HTTP origin or a local
// directory, with request coalescing and an in-memory transport cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/cache"
	"github.com/goblinnotes/goblin/internal/failure"
)

// Fetcher retrieves the bytes of an asset by its normalized path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// HTTPConfig holds configuration for an HTTPFetcher.
type HTTPConfig struct {
	// BaseURL is the origin relative asset paths resolve against.
	BaseURL string

	// Timeout bounds a single request (defaults to 30s).
	Timeout time.Duration

	// RequestsPerSecond limits outgoing requests (defaults to 20).
	RequestsPerSecond int
}

// HTTPFetcher fetches assets over HTTP.
type HTTPFetcher struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 20
	}

	return &HTTPFetcher{
		base:    base,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.RequestsPerSecond)), cfg.RequestsPerSecond),
	}, nil
}

// Fetch downloads an asset. Any non-2xx status is a fetch failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	target, err := f.resolve(path)
	if err != nil {
		return nil, failure.New(failure.CodeFetch, "resolve "+path, err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, failure.New(failure.CodeFetch, "build request for "+path, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, failure.New(failure.CodeFetch, "fetch "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.New(failure.CodeFetch,
			fmt.Sprintf("failed to fetch asset %s: %d", path, resp.StatusCode), nil).
			WithContext("status", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.New(failure.CodeFetch, "read body of "+path, err)
	}
	log.Debug("Fetched asset", "path", path, "bytes", len(body))
	return body, nil
}

func (f *HTTPFetcher) resolve(path string) (string, error) {
	ref, err := url.Parse(assets.NetworkPath(path))
	if err != nil {
		return "", err
	}
	return f.base.ResolveReference(ref).String(), nil
}

// DirFetcher reads assets from a file system, typically os.DirFS of the
// game's asset root. Paths are URL-unescaped first so "%23" names the file
// with a literal "#".
type DirFetcher struct {
	fsys fs.FS
}

// NewDirFetcher creates a fetcher over fsys.
func NewDirFetcher(fsys fs.FS) *DirFetcher {
	return &DirFetcher{fsys: fsys}
}

// Fetch reads an asset.
func (f *DirFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := url.PathUnescape(assets.NormalizePath(path))
	if err != nil {
		return nil, failure.New(failure.CodeFetch, "unescape "+path, err)
	}
	data, err := fs.ReadFile(f.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failure.New(failure.CodeFetch, "failed to fetch asset "+path+": 404", err)
		}
		return nil, failure.New(failure.CodeFetch, "read "+path, err)
	}
	return data, nil
}

// CachingFetcher coalesces identical in-flight requests and keeps responses
// in an evicting memory cache, playing the role of a browser's HTTP cache.
type CachingFetcher struct {
	next      Fetcher
	transport *cache.MemoryCache
	group     singleflight.Group
}

// NewCachingFetcher wraps next with a transport cache of capacity bytes.
func NewCachingFetcher(next Fetcher, capacity int64) *CachingFetcher {
	return &CachingFetcher{
		next:      next,
		transport: cache.NewMemoryCache(capacity),
	}
}

// Fetch returns the transport-cached bytes or fetches them.
func (f *CachingFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	key := assets.NormalizePath(path)
	if data, ok, _ := f.transport.Get(key); ok {
		return data, nil
	}

	// The shared fetch outlives a cancelled caller so the others still get
	// their bytes.
	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(key, func() (interface{}, error) {
		data, err := f.next.Fetch(shared, key)
		if err != nil {
			return nil, err
		}
		if err := f.transport.Put(key, data); err != nil {
			log.Debug("Asset too large for transport cache", "path", key, "bytes", len(data))
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("Coalesced asset fetch", "path", key)
		}
		return res.Val.([]byte), nil
	}
}

// Prime warms the transport cache without returning the bytes.
func (f *CachingFetcher) Prime(ctx context.Context, path string) error {
	_, err := f.Fetch(ctx, path)
	return err
}

// Stats returns transport cache statistics.
func (f *CachingFetcher) Stats() cache.CacheStats {
	return f.transport.Stats()
}
