package cache

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/goblinnotes/goblin/internal/failure"
)

func TestDiskCache_PutGetAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}

	// compressible payload above the 1KB threshold
	value := bytes.Repeat([]byte("goblin "), 1000)
	if err := dc.Put("goblin-notes:v1:asset:a.mp3", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if dc.Size() >= int64(len(value)) {
		t.Errorf("expected compression, size %d for %d bytes", dc.Size(), len(value))
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewDiskCache(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := reopened.Get("goblin-notes:v1:asset:a.mp3")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, value) {
		t.Error("value changed across reopen")
	}

	keys, _ := reopened.Keys()
	if len(keys) != 1 || keys[0] != "goblin-notes:v1:asset:a.mp3" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestDiskCache_CapacityIsQuota(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 100, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := dc.Put("a", make([]byte, 60)); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	err = dc.Put("b", make([]byte, 60))
	if !errors.Is(err, failure.ErrQuotaExceeded) {
		t.Fatalf("Put b err = %v, want quota", err)
	}
	if _, ok, _ := dc.Get("a"); !ok {
		t.Error("quota rejection must not evict")
	}
}

func TestDiskCache_MissingFileReadsAbsent(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	dc.Put("k", []byte("v"))

	if err := os.Remove(dc.generateFilePath("k")); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := dc.Get("k"); ok || err != nil {
		t.Errorf("Get = ok %v err %v, want absent", ok, err)
	}
	if dc.Size() != 0 {
		t.Errorf("size not reclaimed: %d", dc.Size())
	}
}

func TestDiskCache_Delete(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	dc.Put("k", []byte("v"))

	if err := dc.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if err := dc.Delete("never-there"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
	if _, ok, _ := dc.Get("k"); ok {
		t.Error("deleted key still readable")
	}
}
