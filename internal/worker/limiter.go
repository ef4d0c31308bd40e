package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxPause bounds how long a single PauseUntil can hold a host
const DefaultMaxPause = 5 * time.Minute

// hostState is the request budget of one host
type hostState struct {
	limiter  *rate.Limiter
	resumeAt time.Time // No requests before this instant
}

// Limiter throttles requests per host. Besides a steady token bucket each
// host can be paused, e.g. until a server announced rate limit resets.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*hostState
	limit    rate.Limit
	burst    int
	maxPause time.Duration
	now      func() time.Time
}

// NewLimiter creates a limiter allowing requestsPerSecond per host.
// A non-positive rate disables the token bucket; pauses still apply.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		hosts:    make(map[string]*hostState),
		limit:    limit,
		burst:    burst,
		maxPause: DefaultMaxPause,
		now:      time.Now,
	}
}

// Wait blocks until the host of rawURL may receive another request
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}

	l.mu.Lock()
	st := l.state(host)
	pause := st.resumeAt.Sub(l.now())
	limiter := st.limiter
	l.mu.Unlock()

	if pause > 0 {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return limiter.Wait(ctx)
}

// PauseUntil holds back requests to the host of rawURL until t. An earlier
// pause never shortens a later one.
func (l *Limiter) PauseUntil(rawURL string, t time.Time) {
	host, err := hostOf(rawURL)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit := l.now().Add(l.maxPause); t.After(limit) {
		t = limit
	}
	if st := l.state(host); t.After(st.resumeAt) {
		st.resumeAt = t
	}
}

// PauseFor is PauseUntil relative to now
func (l *Limiter) PauseFor(rawURL string, d time.Duration) {
	if d > 0 {
		l.PauseUntil(rawURL, l.now().Add(d))
	}
}

// Paused returns the remaining pause of the host of rawURL
func (l *Limiter) Paused(rawURL string) time.Duration {
	host, err := hostOf(rawURL)
	if err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.hosts[host]
	if !ok {
		return 0
	}
	if d := st.resumeAt.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

// SetHostRate overrides the token bucket of one host
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	if burst <= 0 {
		burst = l.burst
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.state(host).limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// state returns the host entry, creating it. Callers hold l.mu.
func (l *Limiter) state(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.hosts[host] = st
	}
	return st
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return u.Host, nil
}
