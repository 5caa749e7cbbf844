package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Backend names a persistent store implementation.
type Backend string

const (
	// BackendSQLite keeps records in a single SQLite file.
	BackendSQLite Backend = "sqlite"

	// BackendDisk keeps one zstd-compressed file per record.
	BackendDisk Backend = "disk"

	// BackendMemory keeps records for the lifetime of the process only.
	BackendMemory Backend = "memory"

	// BackendNone disables persistence, as in a private browsing session.
	BackendNone Backend = "none"
)

// CacheStats holds cache performance metrics
type CacheStats struct {
	// Configuration
	Capacity int64 // Maximum capacity in bytes

	// Current state
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	// Performance metrics
	Hits      int64   // Number of cache hits
	Misses    int64   // Number of cache misses
	Writes    int64   // Number of successful writes
	Evictions int64   // Number of evictions
	HitRate   float64 // Calculated hit rate (hits / (hits + misses))

	// Timing
	LastAccess time.Time // Last access time
	LastEvict  time.Time // Last eviction time
}

// Store is a flat key-value persistence backend. A missing key is reported
// as ok == false with a nil error; err is reserved for read failures.
type Store interface {
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Close() error
}

// StoreConfig holds configuration for persistent store instances
type StoreConfig struct {
	Backend Backend

	// Path is the SQLite database file or the disk cache directory.
	Path string

	// Capacity is the quota in bytes. Writes beyond it fail with a quota error.
	Capacity int64

	// CompressionLevel is the zstd level for the disk backend (1-22, 0 disables).
	CompressionLevel int
}

// DefaultStoreConfig returns default store configuration
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:          BackendSQLite,
		Capacity:         5 * 1024 * 1024, // 5MB, the usual localStorage allowance
		CompressionLevel: 3,
	}
}
