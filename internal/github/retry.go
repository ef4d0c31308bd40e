package github

import (
	"context"
	"time"

	"github.com/ppiankov/etlconv/internal/model"
)

// retryBackoff returns the pause before the given retry (1-based).
// Overridden in tests.
var retryBackoff = func(retry int) time.Duration {
	return time.Duration(1<<(retry-1)) * time.Second
}

// withRetry runs fn until it succeeds, fails permanently, or the attempts
// are used up. Only transient failures are retried.
func withRetry[T any](ctx context.Context, c *Client, fn func() (T, error)) (T, error) {
	attempts := c.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying github request", "attempt", attempt+1, "error", err)
			if ctx.Err() != nil {
				return result, err
			}
			c.limiter.PauseFor(c.baseURL, retryBackoff(attempt))
		}

		result, err = fn()
		if err == nil || !isRetryable(err) {
			return result, err
		}
	}
	return result, err
}

func isRetryable(err error) bool {
	return err != nil && model.IsTransient(err)
}

// FetchTextWithRetry is FetchText with retries on transient failures
func (c *Client) FetchTextWithRetry(ctx context.Context, path, revision string) (string, error) {
	return withRetry(ctx, c, func() (string, error) {
		return c.FetchText(ctx, path, revision)
	})
}

// FetchCommitsWithRetry is FetchCommits with retries on transient failures
func (c *Client) FetchCommitsWithRetry(ctx context.Context, path string) ([]model.Commit, error) {
	return withRetry(ctx, c, func() ([]model.Commit, error) {
		return c.FetchCommits(ctx, path)
	})
}

// FetchCommitWithRetry is FetchCommit with retries on transient failures
func (c *Client) FetchCommitWithRetry(ctx context.Context, path, ref string) (model.Commit, error) {
	return withRetry(ctx, c, func() (model.Commit, error) {
		return c.FetchCommit(ctx, path, ref)
	})
}

// Retrying adapts a client so that every fetch retries transient failures
type Retrying struct {
	*Client
}

// FetchText fetches with retries
func (r Retrying) FetchText(ctx context.Context, path, revision string) (string, error) {
	return r.FetchTextWithRetry(ctx, path, revision)
}

// FetchCommits fetches with retries
func (r Retrying) FetchCommits(ctx context.Context, path string) ([]model.Commit, error) {
	return r.FetchCommitsWithRetry(ctx, path)
}

// FetchCommit fetches with retries
func (r Retrying) FetchCommit(ctx context.Context, path, ref string) (model.Commit, error) {
	return r.FetchCommitWithRetry(ctx, path, ref)
}
