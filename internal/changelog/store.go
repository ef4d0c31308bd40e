package changelog

import (
	"container/list"
	"sync"

	"github.com/ppiankov/etlconv/internal/model"
)

// Entry is the most recent state of a continuant and the event that recorded it
type Entry struct {
	Entity model.Entity
	Event  model.ChangeEvent
}

// Store holds the last observed state per continuant identity
type Store interface {
	Load(key model.Key) (Entry, bool)
	Save(key model.Key, entry Entry)
	Len() int
	Reset()
}

// MemoryStore is an in-process Store. It is unbounded unless created with a limit.
type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	entries map[model.Key]*list.Element
	order   *list.List // Front is the most recently saved
}

type storeItem struct {
	key   model.Key
	entry Entry
}

// StoreOption configures a MemoryStore
type StoreOption func(*MemoryStore)

// WithLimit bounds the store to n identities, evicting the least recently saved
func WithLimit(n int) StoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.limit = n
		}
	}
}

// NewMemoryStore creates an empty store
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[model.Key]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the entry for key
func (s *MemoryStore) Load(key model.Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(*storeItem).entry, true
}

// Save replaces the entry for key
func (s *MemoryStore) Save(key model.Key, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		el.Value.(*storeItem).entry = entry
		s.order.MoveToFront(el)
		return
	}

	s.entries[key] = s.order.PushFront(&storeItem{key: key, entry: entry})

	if s.limit > 0 && s.order.Len() > s.limit {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*storeItem).key)
	}
}

// Len returns the number of tracked identities
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reset forgets all identities
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[model.Key]*list.Element)
	s.order.Init()
}
