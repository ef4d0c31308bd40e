package worker

import (
	"context"
	"fmt"
)

// ContentSource returns the text of a file at a revision.
// found is false when the file does not exist at that revision.
type ContentSource interface {
	Get(ctx context.Context, path, revision string) (text string, found bool, err error)
}

// RevisionJob fetches one revision of a file
type RevisionJob struct {
	Path     string
	Revision string
	Source   ContentSource
}

// Execute executes the fetch job
func (j *RevisionJob) Execute(ctx context.Context) Result {
	text, found, err := j.Source.Get(ctx, j.Path, j.Revision)
	return &RevisionResult{
		Revision: j.Revision,
		Text:     text,
		Found:    found,
		Error:    err,
	}
}

// RevisionResult represents the content of a file at one revision
type RevisionResult struct {
	Revision string
	Text     string
	Found    bool
	Error    error
}

// GetError returns the error from the fetch
func (r *RevisionResult) GetError() error {
	return r.Error
}

// RevisionBatch fetches many revisions of a file concurrently
type RevisionBatch struct {
	source      ContentSource
	concurrency int
}

// NewRevisionBatch creates a new revision batch
func NewRevisionBatch(source ContentSource, concurrency int) *RevisionBatch {
	return &RevisionBatch{
		source:      source,
		concurrency: concurrency,
	}
}

// Fetch retrieves path at every revision. Results are returned in the
// order of revisions regardless of completion order.
func (b *RevisionBatch) Fetch(ctx context.Context, path string, revisions []string) []*RevisionResult {
	if len(revisions) == 0 {
		return []*RevisionResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	accepted := 0
	for _, rev := range revisions {
		if !pool.Submit(&RevisionJob{Path: path, Revision: rev, Source: b.source}) {
			break
		}
		accepted++
	}
	results := pool.Wait()

	ordered := make([]*RevisionResult, len(revisions))
	for i, rev := range revisions {
		if i < accepted && results[i] != nil {
			ordered[i] = results[i].(*RevisionResult)
			continue
		}
		// Never started because the context ended first
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("revision %s was not fetched", rev)
		}
		ordered[i] = &RevisionResult{Revision: rev, Error: err}
	}

	return ordered
}

// FirstError returns the first failed result in revision order
func FirstError(results []*RevisionResult) error {
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("fetch revision %s: %w", r.Revision, r.Error)
		}
	}
	return nil
}
