package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/failure"
)

const (
	// DefaultNamespace prefixes every key the game writes.
	DefaultNamespace = "goblin-notes"

	// DefaultVersion is the current asset schema version.
	DefaultVersion = "v1"
)

// Fetcher retrieves the raw bytes of an asset by its normalized path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Primer is implemented by fetchers with a transport cache that can be
// warmed without handing the bytes to the caller.
type Primer interface {
	Prime(ctx context.Context, path string) error
}

// Progress is reported after each asset of a batch.
type Progress struct {
	Completed int
	Total     int
	Asset     assets.Asset
}

// Entry describes one persisted asset.
type Entry struct {
	Path string
	Size int
}

// AssetCache persists fetched assets as data URIs in a Store, namespaced and
// versioned. When the store is unusable, or once any write fails, the cache
// degrades to a pass-through for the rest of the process: reads report
// absent and writes are dropped.
type AssetCache struct {
	store   Store
	fetcher Fetcher

	mu        sync.RWMutex
	namespace string
	version   string
	available bool
	stats     CacheStats

	inflight singleflight.Group
}

// NewAssetCache probes the store and configures the namespace. A nil store
// behaves as an unavailable one.
func NewAssetCache(store Store, fetcher Fetcher, namespace, version string) *AssetCache {
	if store == nil {
		store = UnavailableStore{}
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if version == "" {
		version = DefaultVersion
	}

	c := &AssetCache{
		store:     store,
		fetcher:   fetcher,
		namespace: namespace,
		version:   version,
	}
	c.available = c.probe()
	if !c.available {
		log.Debug("Asset storage unavailable, caching disabled", "namespace", namespace)
	}
	c.Configure(namespace, version)
	return c
}

func (c *AssetCache) probe() bool {
	key := c.namespace + ":__test__"
	if err := c.store.Put(key, []byte("1")); err != nil {
		return false
	}
	if err := c.store.Delete(key); err != nil {
		return false
	}
	return true
}

// Configure switches to namespace and schema version. When the persisted
// version marker differs, every record under the namespace is deleted before
// the new marker is written.
func (c *AssetCache) Configure(namespace, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.namespace = namespace
	c.version = version
	if !c.available {
		return
	}

	current, ok, err := c.store.Get(c.markerKey())
	if err != nil {
		log.Warn("Unable to read asset version marker", "namespace", namespace, "error", err)
	}
	if ok && string(current) == version {
		return
	}

	removed, err := c.purgeLocked()
	if err != nil {
		log.Warn("Unable to purge stale assets", "namespace", namespace, "error", err)
	}
	if err := c.store.Put(c.markerKey(), []byte(version)); err != nil {
		c.disableLocked(c.markerKey(), err)
		return
	}
	log.Debug("Asset cache configured", "namespace", namespace, "version", version, "purged", removed)
}

// purgeLocked deletes every key under the namespace (must be called with lock held).
func (c *AssetCache) purgeLocked() (int, error) {
	keys, err := c.store.Keys()
	if err != nil {
		return 0, err
	}
	prefix := c.namespace + ":"
	removed := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if err := c.store.Delete(k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (c *AssetCache) markerKey() string {
	return c.namespace + ":assetVersion"
}

func (c *AssetCache) assetPrefix() string {
	return c.namespace + ":" + c.version + ":asset:"
}

func (c *AssetCache) storageKey(path string) string {
	return c.assetPrefix() + assets.NormalizePath(path)
}

// IsStorageAvailable reports whether persistent caching is still enabled.
func (c *AssetCache) IsStorageAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// Get returns the persisted payload for path. It never fails: an unusable
// store, a missing record and a read error all read as absent.
func (c *AssetCache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return "", false
	}
	value, ok, err := c.store.Get(c.storageKey(path))
	if err != nil {
		log.Warn("Unable to read cached asset", "path", path, "error", err)
		c.stats.Misses++
		return "", false
	}
	if !ok {
		c.stats.Misses++
		return "", false
	}
	c.stats.Hits++
	return string(value), true
}

// Put persists a payload. Any write failure disables storage for the rest
// of the process and the partial record is removed on a best-effort basis.
func (c *AssetCache) Put(path, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return failure.ErrStorageDegraded
	}
	key := c.storageKey(path)
	if err := c.store.Put(key, []byte(payload)); err != nil {
		c.disableLocked(key, err)
		return failure.New(failure.CodeStorageDegraded, "store "+path, err)
	}
	c.stats.Writes++
	return nil
}

// disableLocked turns storage off after a failed write (must be called with lock held).
func (c *AssetCache) disableLocked(key string, cause error) {
	log.Warn("Unable to store asset, disabling asset storage", "key", key, "error", cause,
		"quota", failure.CodeOf(cause) == failure.CodeQuotaExceeded)
	c.available = false
	if err := c.store.Delete(key); err != nil {
		log.Warn("Unable to remove over-sized asset from cache", "key", key, "error", err)
	}
}

// EnsureCached makes an asset locally available. Cacheable assets are read
// from storage or fetched, encoded and stored; the payload is returned even
// when storing failed. Non-cacheable assets, or any asset once storage is
// unavailable, are only primed into the transport cache and read as absent.
// Fetch failures are logged and read as absent.
func (c *AssetCache) EnsureCached(ctx context.Context, asset assets.Asset) (string, bool) {
	path := asset.Key()
	if path == "" {
		return "", false
	}

	if !asset.Cacheable || !c.IsStorageAvailable() {
		c.prime(ctx, path)
		return "", false
	}

	if existing, ok := c.Get(path); ok {
		return existing, true
	}

	// Concurrent requests for one asset share a single fetch, which keeps
	// running when the caller that started it goes away.
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(path, func() (interface{}, error) {
		if existing, ok := c.Get(path); ok {
			return existing, nil
		}
		data, err := c.fetch(shared, path)
		if err != nil {
			return nil, err
		}
		payload := EncodeDataURI(MediaType(path), data)
		if err := c.Put(path, payload); err != nil {
			log.Debug("Asset not persisted", "path", path, "error", err)
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		log.Debug("Stopped waiting for asset", "path", path, "error", ctx.Err())
		return "", false
	case res := <-ch:
		if res.Err != nil {
			log.Error("Unable to cache asset", "path", path, "error", res.Err)
			return "", false
		}
		return res.Val.(string), true
	}
}

func (c *AssetCache) fetch(ctx context.Context, path string) ([]byte, error) {
	if c.fetcher == nil {
		return nil, failure.New(failure.CodeFetch, "no fetcher configured for "+path, nil)
	}
	return c.fetcher.Fetch(ctx, path)
}

func (c *AssetCache) prime(ctx context.Context, path string) {
	var err error
	if p, ok := c.fetcher.(Primer); ok {
		err = p.Prime(ctx, path)
	} else {
		_, err = c.fetch(ctx, path)
	}
	if err != nil {
		log.Error("Unable to prime asset", "path", path, "error", err)
	}
}

// EnsureAllCached runs EnsureCached over a manifest one asset at a time and
// reports progress after each. A panicking callback is logged and ignored.
// It stops early only when ctx is cancelled.
func (c *AssetCache) EnsureAllCached(ctx context.Context, manifest assets.Manifest, onProgress func(Progress)) error {
	total := len(manifest)
	for i, asset := range manifest {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.EnsureCached(ctx, asset)
		if onProgress != nil {
			report(onProgress, Progress{Completed: i + 1, Total: total, Asset: asset})
		}
	}
	return nil
}

func report(onProgress func(Progress), p Progress) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Progress callback failed", "asset", p.Asset.Path, "panic", r)
		}
	}()
	onProgress(p)
}

// Source returns the bytes to play for path: the persisted payload when
// present, otherwise whatever the fetcher returns for the network path.
func (c *AssetCache) Source(ctx context.Context, path string) ([]byte, error) {
	path = assets.NormalizePath(path)
	if payload, ok := c.Get(path); ok {
		_, data, err := DecodeDataURI(payload)
		if err == nil {
			return data, nil
		}
		log.Warn("Cached asset unreadable, fetching", "path", path, "error", err)
	}
	data, err := c.fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", path, err)
	}
	return data, nil
}

// Entries lists the assets persisted under the current namespace and version.
func (c *AssetCache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.available {
		return nil
	}
	keys, err := c.store.Keys()
	if err != nil {
		log.Warn("Unable to list cached assets", "error", err)
		return nil
	}
	prefix := c.assetPrefix()
	var out []Entry
	for _, k := range keys {
		path, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		value, found, err := c.store.Get(k)
		if err != nil || !found {
			continue
		}
		out = append(out, Entry{Path: path, Size: len(value)})
	}
	return out
}

// Clear deletes every record under the namespace, marker included.
func (c *AssetCache) Clear() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return 0, failure.ErrStorageUnavailable
	}
	return c.purgeLocked()
}

// Stats returns hit, miss and write counters for the session.
func (c *AssetCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}
