package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/etlconv/internal/model"
)

// DefaultLockTimeout bounds the wait for a concurrent fetch of the same key
const DefaultLockTimeout = 3 * time.Second

const (
	markerAbsent  byte = 0x00
	markerPresent byte = 0x01
)

// TextFetcher fetches the raw text of a file at a revision.
// It returns an error matching model.ErrNotFound when the file does not exist.
type TextFetcher interface {
	FetchText(ctx context.Context, path, revision string) (string, error)
}

// FetcherFunc adapts a function to TextFetcher
type FetcherFunc func(ctx context.Context, path, revision string) (string, error)

// FetchText calls f
func (f FetcherFunc) FetchText(ctx context.Context, path, revision string) (string, error) {
	return f(ctx, path, revision)
}

// LockTimeoutError reports that a concurrent fetch of the same key held
// the lock for longer than the configured timeout
type LockTimeoutError struct {
	Path     string
	Revision string
	Timeout  time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("content cache: lock for %s@%s not acquired within %s", e.Path, e.Revision, e.Timeout)
}

// Temporary reports that the operation may be retried
func (e *LockTimeoutError) Temporary() bool {
	return true
}

// Stats are the content cache counters
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
}

// keyLock serializes fetches of one key. Every field but sem is guarded by
// ContentCache.mu.
type keyLock struct {
	sem     *semaphore.Weighted
	waiting int
	tickets int // Callers registered so far; each caller holds the next number

	// err is the last upstream failure. Only callers whose ticket is at most
	// errTicket were waiting when it happened and share it.
	err       error
	errTicket int
}

// ContentCache deduplicates fetches of file content at immutable revisions
type ContentCache struct {
	backend     Store
	fetcher     TextFetcher
	lockTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*keyLock

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
}

// ContentOption configures a ContentCache
type ContentOption func(*ContentCache)

// WithLockTimeout sets how long a caller waits for a concurrent fetch
func WithLockTimeout(d time.Duration) ContentOption {
	return func(c *ContentCache) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ContentOption {
	return func(c *ContentCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewContentCache creates a content cache in front of fetcher.
// A nil backend uses a memory store.
func NewContentCache(backend Store, fetcher TextFetcher, opts ...ContentOption) *ContentCache {
	if backend == nil {
		backend = NewMemoryStore(0)
	}

	c := &ContentCache{
		backend:     backend,
		fetcher:     fetcher,
		lockTimeout: DefaultLockTimeout,
		logger:      slog.New(slog.DiscardHandler),
		locks:       make(map[string]*keyLock),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the text of path at revision. found is false when the file
// does not exist at that revision. An empty revision is floating and is
// always fetched directly.
func (c *ContentCache) Get(ctx context.Context, path, revision string) (string, bool, error) {
	if revision == "" {
		return c.fetch(ctx, path, revision)
	}

	key := ContentKey(path, revision)
	if text, found, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return text, found, nil
	}
	c.misses.Add(1)

	lock, ticket := c.enter(key)
	defer c.leave(key, lock)

	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	if err := lock.sem.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("wait for %s@%s: %w", path, revision, ctx.Err())
		}
		c.logger.Warn("content cache lock timeout", "path", path, "revision", revision, "timeout", c.lockTimeout)
		return "", false, &LockTimeoutError{Path: path, Revision: revision, Timeout: c.lockTimeout}
	}
	defer lock.sem.Release(1)

	// A concurrent holder may have filled the entry while we waited
	if text, found, ok := c.lookup(key); ok {
		return text, found, nil
	}

	c.mu.Lock()
	var prev error
	if ticket <= lock.errTicket {
		prev = lock.err
	}
	c.mu.Unlock()
	if prev != nil {
		return "", false, prev
	}

	text, found, err := c.fetch(ctx, path, revision)
	if err != nil {
		// A failure caused by this caller's own context is not an upstream
		// result; the next waiter fetches for itself
		if ctx.Err() == nil {
			c.mu.Lock()
			lock.err = err
			lock.errTicket = lock.tickets
			c.mu.Unlock()
		}
		return "", false, err
	}

	if err := c.backend.Save(key, encode(text, found)); err != nil {
		c.logger.Warn("content cache store failed", "path", path, "revision", revision, "error", err)
	}

	return text, found, nil
}

// Stats returns a snapshot of the counters
func (c *ContentCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Fetches: c.fetches.Load(),
	}
}

func (c *ContentCache) fetch(ctx context.Context, path, revision string) (string, bool, error) {
	c.fetches.Add(1)
	c.logger.Debug("fetching content", "path", path, "revision", revision)

	text, err := c.fetcher.FetchText(ctx, path, revision)
	if errors.Is(err, model.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetch %s@%s: %w", path, revision, err)
	}
	return text, true, nil
}

func (c *ContentCache) lookup(key string) (string, bool, bool) {
	data, ok := c.backend.Load(key)
	if !ok || len(data) == 0 {
		return "", false, false
	}
	switch data[0] {
	case markerAbsent:
		return "", false, true
	case markerPresent:
		return string(data[1:]), true, true
	default:
		return "", false, false
	}
}

// enter registers the caller as a waiter on the key's lock, creating it if
// absent, and returns the caller's ticket
func (c *ContentCache) enter(key string) (*keyLock, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[key]
	if !ok {
		lock = &keyLock{sem: semaphore.NewWeighted(1)}
		c.locks[key] = lock
	}
	lock.waiting++
	lock.tickets++
	return lock, lock.tickets
}

// leave drops the caller; the last waiter removes the lock
func (c *ContentCache) leave(key string, lock *keyLock) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock.waiting--
	if lock.waiting == 0 && c.locks[key] == lock {
		delete(c.locks, key)
	}
}

func encode(text string, found bool) []byte {
	if !found {
		return []byte{markerAbsent}
	}
	data := make([]byte, 0, len(text)+1)
	data = append(data, markerPresent)
	return append(data, text...)
}
