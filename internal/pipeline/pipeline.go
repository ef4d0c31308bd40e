package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/etlconv/internal/cache"
	"github.com/ppiankov/etlconv/internal/changelog"
	"github.com/ppiankov/etlconv/internal/extract"
	"github.com/ppiankov/etlconv/internal/github"
	"github.com/ppiankov/etlconv/internal/llm"
	"github.com/ppiankov/etlconv/internal/model"
	"github.com/ppiankov/etlconv/internal/provenance"
	"github.com/ppiankov/etlconv/internal/worker"
)

// HistorySource lists the revisions of a file
type HistorySource interface {
	// FetchCommits returns the commits touching path, most recent first
	FetchCommits(ctx context.Context, path string) ([]model.Commit, error)

	// FetchCommit returns the most recent commit touching path at ref
	FetchCommit(ctx context.Context, path, ref string) (model.Commit, error)
}

// Pipeline orchestrates extraction, provenance and changelog runs
type Pipeline struct {
	history    HistorySource
	content    worker.ContentSource
	generator  *provenance.Generator
	summarizer *llm.Summarizer // Optional LLM summarizer (nil if disabled)
	config     *model.Config
	logger     *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithHistory replaces the commit history source
func WithHistory(h HistorySource) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithContent replaces the revision content source
func WithContent(s worker.ContentSource) Option {
	return func(p *Pipeline) { p.content = s }
}

// WithSummarizer sets the changelog summarizer
func WithSummarizer(s *llm.Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline. Sources not supplied as options are built
// from configuration: a retrying GitHub client behind the content cache.
func NewPipeline(cfg *model.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		generator: provenance.NewGenerator(cfg.Provenance),
		config:    cfg,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.history == nil || p.content == nil {
		limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
		client := github.Retrying{Client: github.NewClient(cfg.GitHub,
			github.WithLimiter(limiter),
			github.WithLogger(p.logger),
		)}

		if p.history == nil {
			p.history = client
		}
		if p.content == nil {
			p.content = newContentSource(cfg.Cache, client, p.logger)
		}
	}

	if p.summarizer == nil && cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg))
		if err != nil {
			p.logger.Warn("LLM summaries disabled", "error", err)
		} else {
			p.summarizer = s
		}
	}

	return p
}

func newContentSource(cfg model.CacheConfig, fetcher cache.TextFetcher, logger *slog.Logger) worker.ContentSource {
	if !cfg.Enabled {
		return uncached{fetcher: fetcher}
	}
	return cache.NewContentCache(cache.New(cfg), fetcher,
		cache.WithLockTimeout(cfg.LockTimeout),
		cache.WithLogger(logger),
	)
}

// uncached reads content straight from the fetcher
type uncached struct {
	fetcher cache.TextFetcher
}

func (u uncached) Get(ctx context.Context, path, revision string) (string, bool, error) {
	text, err := u.fetcher.FetchText(ctx, path, revision)
	if errors.Is(err, model.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetch %s@%s: %w", path, revision, err)
	}
	return text, true, nil
}

// ExtractResult is a parsed document and the commit it was read at
type ExtractResult struct {
	Commit model.CommitRef `json:"commit"`
	Model  *model.Document `json:"model"`
}

// Extract parses doc as of ref (the default branch when empty)
func (p *Pipeline) Extract(ctx context.Context, doc model.TrackedDocument, ref string) (*ExtractResult, error) {
	commit, parsed, err := p.load(ctx, doc, ref)
	if err != nil {
		return nil, err
	}

	return &ExtractResult{
		Commit: model.CommitRef{SHA: commit.SHA, Date: commit.Committer.Date},
		Model:  parsed,
	}, nil
}

// Provenance generates the entity batch for doc as of ref
func (p *Pipeline) Provenance(ctx context.Context, doc model.TrackedDocument, ref string) ([]model.Entity, error) {
	commit, parsed, err := p.load(ctx, doc, ref)
	if err != nil {
		return nil, err
	}

	entities, err := p.generator.Generate(doc.Path, p.config.Provenance.Domain, parsed, commit)
	if err != nil {
		return nil, fmt.Errorf("%s at %s: %w", doc.ID(), shortSHA(commit.SHA), err)
	}
	return entities, nil
}

// load resolves ref to a commit and parses the document at that commit
func (p *Pipeline) load(ctx context.Context, doc model.TrackedDocument, ref string) (model.Commit, *model.Document, error) {
	commit, err := p.history.FetchCommit(ctx, doc.Path, ref)
	if err != nil {
		return model.Commit{}, nil, fmt.Errorf("resolve %s at %q: %w", doc.ID(), ref, err)
	}

	text, found, err := p.content.Get(ctx, doc.Path, commit.SHA)
	if err != nil {
		return model.Commit{}, nil, err
	}
	if !found {
		return model.Commit{}, nil, fmt.Errorf("%s at %s: %w", doc.Path, shortSHA(commit.SHA), model.ErrNotFound)
	}

	parsed, err := p.parse(doc, text)
	if err != nil {
		return model.Commit{}, nil, fmt.Errorf("%s at %s: %w", doc.ID(), shortSHA(commit.SHA), err)
	}
	return commit, parsed, nil
}

func (p *Pipeline) parse(doc model.TrackedDocument, text string) (*model.Document, error) {
	parsed, err := extract.ParseString(text, extract.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	parsed.Name = doc.Name
	return parsed, nil
}

// Skipped is a revision left out of a changelog
type Skipped struct {
	SHA    string `json:"sha"`
	Reason string `json:"reason"`
}

// ChangelogResult is the change history of a tracked document
type ChangelogResult struct {
	Document model.TrackedDocument `json:"document"`
	Commits  []model.Commit        `json:"commits"` // Revisions diffed, oldest first
	Events   []model.ChangeEvent   `json:"events"`
	Skipped  []Skipped             `json:"skipped,omitempty"`
	Summary  *model.LLMSummary     `json:"llm,omitempty"` // Optional, never affects the events
}

// Changelog replays the history of doc oldest first and returns the change
// events of its models, tables and fields. Revision contents are fetched
// concurrently; parsing and diffing run in commit order.
func (p *Pipeline) Changelog(ctx context.Context, doc model.TrackedDocument) (*ChangelogResult, error) {
	commits, err := p.history.FetchCommits(ctx, doc.Path)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", doc.ID(), err)
	}
	commits = github.Chronological(commits)

	revisions := make([]string, len(commits))
	for i, c := range commits {
		revisions[i] = c.SHA
	}

	p.logger.Info("fetching revisions", "document", doc.ID(), "revisions", len(revisions))
	results := worker.NewRevisionBatch(p.content, p.config.Concurrency.Workers).Fetch(ctx, doc.Path, revisions)
	if err := worker.FirstError(results); err != nil {
		return nil, fmt.Errorf("changelog of %s: %w", doc.ID(), err)
	}
	p.logStats()

	differ := changelog.New(
		changelog.WithDomain(p.config.Provenance.ChangelogDomain),
		changelog.WithLogger(p.logger),
	)

	result := &ChangelogResult{Document: doc, Events: []model.ChangeEvent{}}

	for i, commit := range commits {
		r := results[i]
		if !r.Found {
			p.logger.Warn("file absent at revision", "path", doc.Path, "sha", commit.SHA)
			result.Skipped = append(result.Skipped, Skipped{SHA: commit.SHA, Reason: "file not found"})
			continue
		}

		parsed, err := p.parse(doc, r.Text)
		if err != nil {
			p.logger.Warn("unparseable revision", "path", doc.Path, "sha", commit.SHA, "error", err)
			result.Skipped = append(result.Skipped, Skipped{SHA: commit.SHA, Reason: err.Error()})
			continue
		}

		entities, err := p.generator.Generate(doc.Path, p.config.Provenance.Domain, parsed, commit)
		if err != nil {
			p.logger.Warn("invalid revision", "path", doc.Path, "sha", commit.SHA, "error", err)
			result.Skipped = append(result.Skipped, Skipped{SHA: commit.SHA, Reason: err.Error()})
			continue
		}

		for _, e := range entities {
			if !isContent(e) {
				continue
			}
			if ev := differ.Evaluate(e); ev != nil {
				result.Events = append(result.Events, *ev)
			}
		}
		result.Commits = append(result.Commits, commit)
	}

	p.logger.Info("changelog complete", "document", doc.ID(),
		"revisions", len(result.Commits), "events", len(result.Events), "skipped", len(result.Skipped))

	return result, nil
}

// Summarize attaches an LLM summary to a changelog when a provider is configured.
// It reports whether a summary was requested from a provider.
func (p *Pipeline) Summarize(ctx context.Context, result *ChangelogResult) bool {
	if !p.summarizer.IsEnabled() {
		return false
	}

	summary, err := p.summarizer.GenerateSummary(ctx, llm.SummarizeRequest{
		Document: result.Document,
		Commits:  result.Commits,
		Events:   result.Events,
	})
	if err != nil {
		// Don't fail the changelog, just warn
		p.logger.Warn("LLM summary generation failed", "error", err)
		return true
	}
	result.Summary = summary
	return true
}

// isContent selects the continuants extracted from the document itself
func isContent(e model.Entity) bool {
	return e.HasLabel(model.LabelModel) || e.HasLabel(model.LabelTable) || e.HasLabel(model.LabelField)
}

func (p *Pipeline) logStats() {
	if c, ok := p.content.(*cache.ContentCache); ok {
		s := c.Stats()
		p.logger.Debug("content cache", "hits", s.Hits, "misses", s.Misses, "fetches", s.Fetches)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
