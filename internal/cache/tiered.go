package cache

import (
	"errors"
	"fmt"

	"github.com/ppiankov/etlconv/internal/model"
)

// TieredStore reads from a fast tier first and falls back to a slow one,
// copying slow hits into the fast tier
type TieredStore struct {
	fast Store
	slow Store
}

// NewTieredStore stacks fast in front of slow
func NewTieredStore(fast, slow Store) *TieredStore {
	return &TieredStore{fast: fast, slow: slow}
}

// New builds the store described by the configuration: memory only, or
// memory in front of disk when a disk directory is configured
func New(cfg model.CacheConfig) Store {
	memory := NewMemoryStore(cfg.CleanupInterval)
	if cfg.DiskDir == "" {
		return memory
	}
	return NewTieredStore(memory, NewDiskStore(cfg.DiskDir))
}

// Load checks the fast tier, then the slow one
func (s *TieredStore) Load(key string) ([]byte, bool) {
	if v, ok := s.fast.Load(key); ok {
		return v, true
	}

	v, ok := s.slow.Load(key)
	if !ok {
		return nil, false
	}
	_ = s.fast.Save(key, v)
	return v, true
}

// Save writes through to both tiers. The fast tier is written even when
// the slow one fails.
func (s *TieredStore) Save(key string, value []byte) error {
	if err := s.fast.Save(key, value); err != nil {
		return fmt.Errorf("fast tier: %w", err)
	}
	if err := s.slow.Save(key, value); err != nil {
		return fmt.Errorf("slow tier: %w", err)
	}
	return nil
}

// Delete removes key from both tiers
func (s *TieredStore) Delete(key string) error {
	return errors.Join(s.fast.Delete(key), s.slow.Delete(key))
}

// Clear empties both tiers
func (s *TieredStore) Clear() error {
	return errors.Join(s.fast.Clear(), s.slow.Clear())
}
