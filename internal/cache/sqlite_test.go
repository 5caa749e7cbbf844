package cache

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goblinnotes/goblin/internal/failure"
)

func openTestSQLite(t *testing.T, capacity int64) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "assets.db"), capacity)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_CRUD(t *testing.T) {
	s := openTestSQLite(t, 1<<20)

	if _, ok, err := s.Get("missing"); ok || err != nil {
		t.Fatalf("Get missing = ok %v err %v", ok, err)
	}

	if err := s.Put("b", []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("a", []byte("one")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := s.Get("a")
	if err != nil || !ok || string(got) != "one" {
		t.Errorf("Get a = %q ok %v err %v", got, ok, err)
	}

	keys, err := s.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v", keys)
	}

	if err := s.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get("a"); ok {
		t.Error("deleted key readable")
	}

	stats := s.Stats()
	if stats.ItemCount != 1 || stats.Size != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestSQLiteStore_FullIsQuota(t *testing.T) {
	// the minimum page budget, far below the blob size
	s := openTestSQLite(t, 1)

	err := s.Put("big", bytes.Repeat([]byte{0xAB}, 256*1024))
	if !errors.Is(err, failure.ErrQuotaExceeded) {
		t.Fatalf("Put err = %v, want quota", err)
	}
	if failure.CodeOf(err) != failure.CodeQuotaExceeded {
		t.Errorf("CodeOf = %s", failure.CodeOf(err))
	}

	// small records still fit
	if err := s.Put("small", []byte("ok")); err != nil {
		t.Errorf("small Put after full: %v", err)
	}
}

func TestSQLiteStore_DrivesAssetCache(t *testing.T) {
	s := openTestSQLite(t, 1<<20)
	c := NewAssetCache(s, newCountingFetcher(testBodies()), "", "")

	if !c.IsStorageAvailable() {
		t.Fatal("sqlite store should probe as available")
	}
	if _, ok := c.EnsureCached(context.Background(), helloAudio); !ok {
		t.Fatal("EnsureCached absent")
	}

	again := NewAssetCache(s, newCountingFetcher(nil), "", "")
	if _, ok := again.Get(helloAudio.Path); !ok {
		t.Error("record not persisted in sqlite")
	}
}
