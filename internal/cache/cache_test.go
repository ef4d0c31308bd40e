package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/etlconv/internal/model"
)

func TestContentKey(t *testing.T) {
	a := ContentKey("docs/etl.md", "abc123")
	if a != ContentKey("docs/etl.md", "abc123") {
		t.Error("Expected key to be stable")
	}
	if a == ContentKey("docs/etl.md", "def456") {
		t.Error("Expected different revisions to produce different keys")
	}
	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("Unexpected key prefix: %s", a)
	}
}

func TestMemoryStore_FirstWriteWins(t *testing.T) {
	s := NewMemoryStore(time.Minute)

	if err := s.Save("k", []byte("first")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("k", []byte("second")); err != nil {
		t.Fatalf("Save over existing key: %v", err)
	}

	v, ok := s.Load("k")
	if !ok || string(v) != "first" {
		t.Errorf("Expected first, got %q ok=%v", v, ok)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", s.Len())
	}

	_ = s.Delete("k")
	if _, ok := s.Load("k"); ok {
		t.Error("Expected entry to be deleted")
	}
}

func TestDiskStore_RoundTrip(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	key := ContentKey("a.md", "abc123")

	if err := s.Save(key, []byte("hello")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v, ok := s.Load(key)
	if !ok || !bytes.Equal(v, []byte("hello")) {
		t.Fatalf("Expected hello, got %q ok=%v", v, ok)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Load(key); ok {
		t.Error("Expected entry to be deleted")
	}
	if err := s.Delete(key); err != nil {
		t.Errorf("Expected deleting a missing entry to succeed, got %v", err)
	}
}

func TestDiskStore_EmptyValue(t *testing.T) {
	s := NewDiskStore(t.TempDir())

	if err := s.Save("absent", []byte{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v, ok := s.Load("absent")
	if !ok || len(v) != 0 {
		t.Errorf("Expected empty hit, got %q ok=%v", v, ok)
	}
}

func TestDiskStore_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStore(dir)

	if err := s.Save("k", []byte("payload")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := s.path("k")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, ok := s.Load("k"); ok {
		t.Error("Expected corrupt entry to be a miss")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected corrupt entry to be removed")
	}

	// A fresh save repairs the entry
	if err := s.Save("k", []byte("payload")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v, ok := s.Load("k"); !ok || string(v) != "payload" {
		t.Errorf("Expected repaired entry, got %q ok=%v", v, ok)
	}
}

func TestDiskStore_Sharded(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStore(dir)

	path := s.path("k")
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 || len(parts[0]) != 2 || !strings.HasPrefix(parts[1], parts[0]) {
		t.Errorf("Unexpected shard layout %q", rel)
	}
}

func TestTieredStore_PromotesSlowHits(t *testing.T) {
	fast := NewMemoryStore(0)
	slow := NewDiskStore(t.TempDir())
	s := NewTieredStore(fast, slow)

	if err := slow.Save("k", []byte("from disk")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	v, ok := s.Load("k")
	if !ok || string(v) != "from disk" {
		t.Fatalf("Expected disk value, got %q ok=%v", v, ok)
	}
	if _, ok := fast.Load("k"); !ok {
		t.Error("Expected slow hit to be promoted")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := s.Load("k"); ok {
		t.Error("Expected both tiers to be cleared")
	}
}

func TestTieredStore_WritesThrough(t *testing.T) {
	fast := NewMemoryStore(0)
	slow := NewDiskStore(t.TempDir())
	s := NewTieredStore(fast, slow)

	if err := s.Save("k", []byte("v")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fast.Load("k"); !ok {
		t.Error("Expected fast tier entry")
	}
	if _, ok := slow.Load("k"); !ok {
		t.Error("Expected slow tier entry")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(model.CacheConfig{}).(*MemoryStore); !ok {
		t.Error("Expected memory store without disk dir")
	}
	if _, ok := New(model.CacheConfig{DiskDir: t.TempDir()}).(*TieredStore); !ok {
		t.Error("Expected tiered store with disk dir")
	}
}
