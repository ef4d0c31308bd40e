package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore persists entries as files sharded by key hash. Each file holds
// the sha256 of its payload followed by the payload; files that fail the
// check are treated as missing and removed.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a store rooted at dir. The directory is created on
// first write.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Load reads and verifies the entry for key
func (s *DiskStore) Load(key string) ([]byte, bool) {
	path := s.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	if len(data) < sha256.Size {
		_ = os.Remove(path)
		return nil, false
	}
	sum, payload := data[:sha256.Size], data[sha256.Size:]
	if want := sha256.Sum256(payload); !bytes.Equal(sum, want[:]) {
		_ = os.Remove(path)
		return nil, false
	}

	return payload, true
}

// Save writes value for key. An existing valid entry is kept.
func (s *DiskStore) Save(key string, value []byte) error {
	if _, ok := s.Load(key); ok {
		return nil
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache shard: %w", err)
	}

	sum := sha256.Sum256(value)
	data := make([]byte, 0, sha256.Size+len(value))
	data = append(data, sum[:]...)
	data = append(data, value...)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}

	return nil
}

// Delete removes the entry. Missing entries are not an error.
func (s *DiskStore) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache file: %w", err)
	}
	return nil
}

// Clear removes the store directory
func (s *DiskStore) Clear() error {
	return os.RemoveAll(s.dir)
}

// path maps key to <dir>/<first two hex digits>/<hash>.entry
func (s *DiskStore) path(key string) string {
	hash := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(hash[:])
	return filepath.Join(s.dir, name[:2], name+".entry")
}
