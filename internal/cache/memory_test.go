package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goblinnotes/goblin/internal/failure"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024) // 1KB capacity

	key := "test-key"
	value := []byte("test-value")

	if err := cache.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	retrieved, ok, err := cache.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}

	if string(retrieved) != string(value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", retrieved, value)
	}

	if !cache.Contains(key) {
		t.Error("Contains returned false for existing key")
	}

	expectedSize := int64(len(value))
	if cache.Size() != expectedSize {
		t.Errorf("Size mismatch: got %d, want %d", cache.Size(), expectedSize)
	}

	if err := cache.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if cache.Contains(key) {
		t.Error("Key still exists after delete")
	}

	if cache.Size() != 0 {
		t.Errorf("Size not zero after delete: %d", cache.Size())
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(100) // Small capacity for testing

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		if err := cache.Put(key, make([]byte, 20)); err != nil {
			t.Fatalf("Put failed for key %s: %v", key, err)
		}
	}

	// Access key-0 and key-1 to make them recently used
	cache.Get("key-0")
	cache.Get("key-1")

	if err := cache.Put("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Put failed for new key: %v", err)
	}

	if cache.Contains("key-2") {
		t.Error("key-2 should have been evicted")
	}
	if !cache.Contains("key-0") {
		t.Error("key-0 should not have been evicted")
	}
	if !cache.Contains("key-1") {
		t.Error("key-1 should not have been evicted")
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(100)

	err := cache.Put("large-key", make([]byte, 200))
	if err != ErrItemTooLarge {
		t.Errorf("Expected ErrItemTooLarge, got %v", err)
	}
}

func TestMemoryCache_QuotaRejects(t *testing.T) {
	cache := NewQuotaMemoryCache(50)

	if err := cache.Put("a", make([]byte, 30)); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	err := cache.Put("b", make([]byte, 30))
	if !errors.Is(err, failure.ErrQuotaExceeded) {
		t.Fatalf("Expected quota error, got %v", err)
	}

	// nothing was evicted to make room
	if !cache.Contains("a") {
		t.Error("quota mode must not evict")
	}
	if cache.Contains("b") {
		t.Error("rejected write must not be stored")
	}

	// overwriting within the quota is fine
	if err := cache.Put("a", make([]byte, 40)); err != nil {
		t.Errorf("overwrite within quota failed: %v", err)
	}
}

func TestMemoryCache_UpdateExisting(t *testing.T) {
	cache := NewMemoryCache(1024)

	key := "update-key"
	if err := cache.Put(key, []byte("original")); err != nil {
		t.Fatalf("First Put failed: %v", err)
	}
	if err := cache.Put(key, []byte("updated-value")); err != nil {
		t.Fatalf("Update Put failed: %v", err)
	}

	retrieved, ok, _ := cache.Get(key)
	if !ok {
		t.Fatal("Key not found after update")
	}
	if string(retrieved) != "updated-value" {
		t.Errorf("Value not updated: got %s", retrieved)
	}
	if cache.Size() != int64(len("updated-value")) {
		t.Errorf("Size not adjusted: %d", cache.Size())
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := NewMemoryCache(1024)

	for i := 0; i < 5; i++ {
		cache.Put(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if cache.Size() != 0 {
		t.Errorf("Size not zero after clear: %d", cache.Size())
	}

	keys, _ := cache.Keys()
	if len(keys) != 0 {
		t.Errorf("Keys remain after clear: %v", keys)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(1024)

	stats := cache.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Error("Initial stats should be zero")
	}

	cache.Put("key1", []byte("value1"))
	cache.Get("key1") // Hit
	cache.Get("key2") // Miss

	stats = cache.Stats()
	if stats.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if stats.Writes != 1 {
		t.Errorf("Expected 1 write, got %d", stats.Writes)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", stats.HitRate)
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(10240) // 10KB

	var wg sync.WaitGroup
	errs := make(chan error, 100)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				key := fmt.Sprintf("writer-%d-key-%d", id, j)
				if err := cache.Put(key, []byte(key)); err != nil {
					errs <- fmt.Errorf("writer %d: %v", id, err)
				}
			}
		}(i)
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				// Some reads might miss if write hasn't happened yet
				cache.Get(fmt.Sprintf("writer-%d-key-%d", id, j))
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case err := <-errs:
		t.Fatal(err)
	case <-time.After(5 * time.Second):
		t.Fatal("Test timed out")
	}
}

func BenchmarkMemoryCache_Put(b *testing.B) {
	cache := NewMemoryCache(1024 * 1024) // 1MB
	value := make([]byte, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Put(fmt.Sprintf("key-%d", i), value)
	}
}

func BenchmarkMemoryCache_Get(b *testing.B) {
	cache := NewMemoryCache(1024 * 1024)

	for i := 0; i < 1000; i++ {
		cache.Put(fmt.Sprintf("key-%d", i), make([]byte, 100))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(fmt.Sprintf("key-%d", i%1000))
	}
}
