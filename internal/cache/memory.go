package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore creates an empty memory store. cleanupInterval is the
// janitor period of the underlying go-cache; zero disables it.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Load returns the entry for key
func (s *MemoryStore) Load(key string) ([]byte, bool) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Save stores value unless key is already present. The first write wins.
func (s *MemoryStore) Save(key string, value []byte) error {
	// Add fails only when the key exists, which is not an error here
	_ = s.items.Add(key, value, gocache.NoExpiration)
	return nil
}

// Delete removes key
func (s *MemoryStore) Delete(key string) error {
	s.items.Delete(key)
	return nil
}

// Clear drops every entry
func (s *MemoryStore) Clear() error {
	s.items.Flush()
	return nil
}

// Len returns the number of entries
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
