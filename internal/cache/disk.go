package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"github.com/goblinnotes/goblin/internal/failure"
)

const indexFile = "cache.index"

// DiskCache implements a directory-backed store with optional zstd
// compression. Each record is one file named after the hash of its key; a gob
// index maps keys to files and survives restarts.
//
// Writes that would exceed the capacity, or that fail because the volume is
// out of space, are rejected with a quota error. Nothing is evicted.
type DiskCache struct {
	basePath string
	capacity int64 // Maximum size in bytes
	size     int64 // Current size in bytes

	// Compression
	compressionLevel int
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder

	// Index for fast lookups
	index map[string]*diskCacheEntry

	// Synchronization
	mu sync.RWMutex

	// Metrics
	stats CacheStats

	enableCompression bool
}

// diskCacheEntry represents an entry in the disk cache index
type diskCacheEntry struct {
	Key          string
	FilePath     string
	Size         int64 // Size on disk (compressed)
	OriginalSize int64 // Original size (uncompressed)
	Timestamp    time.Time
	Compressed   bool
}

// NewDiskCache creates a new disk cache with the specified path and capacity.
func NewDiskCache(basePath string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		basePath:          basePath,
		capacity:          capacity,
		compressionLevel:  compressionLevel,
		index:             make(map[string]*diskCacheEntry),
		enableCompression: compressionLevel > 0,
		stats: CacheStats{
			Capacity: capacity,
		},
	}

	// The decoder is always needed to read entries written with compression
	// by an earlier run.
	var err error
	dc.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if dc.enableCompression {
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	if err := dc.loadIndex(); err != nil {
		// Non-fatal: start with an empty index
		log.Warn("Disk cache index unreadable, starting empty", "path", basePath, "error", err)
		dc.index = make(map[string]*diskCacheEntry)
	}

	dc.calculateSize()

	return dc, nil
}

// Get retrieves a value from the disk cache.
func (dc *DiskCache) Get(key string) ([]byte, bool, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false, nil
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		dc.dropEntry(key, entry)
		dc.stats.Misses++
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache file: %w", err)
	}

	if entry.Compressed {
		decompressed, err := dc.decoder.DecodeAll(data, nil)
		if err != nil {
			dc.dropEntry(key, entry)
			dc.stats.Misses++
			return nil, false, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
		}
		data = decompressed
	}

	dc.stats.Hits++
	dc.stats.LastAccess = time.Now()

	return data, true, nil
}

// Put stores a value in the disk cache.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	originalSize := int64(len(value))

	dataToWrite := value
	var compressed bool
	if dc.enableCompression && originalSize > 1024 { // Only compress if > 1KB
		compressedData := dc.encoder.EncodeAll(value, nil)
		if len(compressedData) < len(value) {
			dataToWrite = compressedData
			compressed = true
		}
	}

	diskSize := int64(len(dataToWrite))

	var existingSize int64
	if existing, ok := dc.index[key]; ok {
		existingSize = existing.Size
	}

	if dc.size-existingSize+diskSize > dc.capacity {
		return failure.New(failure.CodeQuotaExceeded,
			fmt.Sprintf("disk cache full writing %s (%d bytes)", key, diskSize), failure.ErrQuotaExceeded)
	}

	filePath := dc.generateFilePath(key)

	if err := dc.writeFile(filePath, dataToWrite); err != nil {
		if isNoSpace(err) {
			return failure.New(failure.CodeQuotaExceeded, "disk cache volume full", err)
		}
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[key] = &diskCacheEntry{
		Key:          key,
		FilePath:     filePath,
		Size:         diskSize,
		OriginalSize: originalSize,
		Timestamp:    time.Now(),
		Compressed:   compressed,
	}
	dc.size += diskSize - existingSize

	dc.stats.Size = dc.size
	dc.stats.ItemCount = int64(len(dc.index))
	dc.stats.Writes++

	if err := dc.saveIndex(); err != nil {
		if isNoSpace(err) {
			return failure.New(failure.CodeQuotaExceeded, "disk cache volume full", err)
		}
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	return nil
}

// Delete removes an entry from the disk cache.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		return nil
	}

	dc.dropEntry(key, entry)
	return dc.saveIndex()
}

// Keys returns all indexed keys in sorted order.
func (dc *DiskCache) Keys() ([]string, error) {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	keys := make([]string, 0, len(dc.index))
	for key := range dc.index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all entries from the disk cache.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, entry := range dc.index {
		os.Remove(entry.FilePath)
	}

	dc.index = make(map[string]*diskCacheEntry)
	dc.size = 0

	dc.stats.Size = 0
	dc.stats.ItemCount = 0

	return dc.saveIndex()
}

// Size returns the current cache size in bytes.
func (dc *DiskCache) Size() int64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	return dc.size
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() CacheStats {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))

	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}

	return stats
}

// Close closes the disk cache, saving the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.encoder != nil {
		dc.encoder.Close()
	}
	dc.decoder.Close()
	return dc.saveIndex()
}

// dropEntry forgets an entry and removes its file (must be called with lock held).
func (dc *DiskCache) dropEntry(key string, entry *diskCacheEntry) {
	os.Remove(entry.FilePath)
	delete(dc.index, key)
	dc.size -= entry.Size
	dc.stats.Size = dc.size
	dc.stats.ItemCount = int64(len(dc.index))
}

func (dc *DiskCache) generateFilePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	filename := hex.EncodeToString(hash[:16]) + ".cache"
	return filepath.Join(dc.basePath, filename)
}

func (dc *DiskCache) writeFile(path string, data []byte) error {
	// Write to temp file first, then rename (atomic on most systems)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}

func (dc *DiskCache) loadIndex() error {
	file, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No index file yet
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	indexPath := filepath.Join(dc.basePath, indexFile)
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(dc.index)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, indexPath)
}

func (dc *DiskCache) calculateSize() {
	dc.size = 0
	for _, entry := range dc.index {
		dc.size += entry.Size
	}
	dc.stats.Size = dc.size
	dc.stats.ItemCount = int64(len(dc.index))
}
