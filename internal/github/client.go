package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/etlconv/internal/model"
	"github.com/ppiankov/etlconv/internal/provenance"
	"github.com/ppiankov/etlconv/internal/util"
	"github.com/ppiankov/etlconv/internal/worker"
)

// Media types of the GitHub REST API
const (
	MediaTypeRaw     = "application/vnd.github.v3.raw"
	MediaTypeDefault = "application/vnd.github.v3+json"
)

const (
	commitsPerPage = 100
	maxCommitPages = 20
)

// Client reads file contents and history from a GitHub repository
type Client struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	token      string
	userAgent  string
	maxBytes   int64
	maxRetries int
	limiter    *worker.Limiter
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLimiter sets the request rate limiter
func WithLimiter(l *worker.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client from configuration
func NewClient(cfg model.GitHubConfig, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		maxRetries: cfg.MaxRetries,
		limiter:    worker.NewLimiter(0, 1),
		logger:     slog.New(slog.DiscardHandler),
	}
	if c.maxBytes <= 0 {
		c.maxBytes = 10_000_000
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchText returns the raw content of path at revision (the default branch when empty).
// A missing file yields an error matching model.ErrNotFound.
func (c *Client) FetchText(ctx context.Context, path, revision string) (string, error) {
	query := url.Values{}
	if revision != "" {
		query.Set("ref", revision)
	}

	body, _, err := c.get(ctx, "get contents", c.repoURL("contents/"+escapePath(path), query), MediaTypeRaw)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchCommits returns every commit touching path, most recent first as delivered by the API
func (c *Client) FetchCommits(ctx context.Context, path string) ([]model.Commit, error) {
	query := url.Values{}
	query.Set("path", path)
	query.Set("per_page", strconv.Itoa(commitsPerPage))

	next := c.repoURL("commits", query)
	var commits []model.Commit

	for page := 0; next != "" && page < maxCommitPages; page++ {
		body, header, err := c.get(ctx, "list commits", next, MediaTypeDefault)
		if err != nil {
			return nil, err
		}

		batch, err := decodeCommits(body, path)
		if err != nil {
			return nil, err
		}
		commits = append(commits, batch...)
		next = nextLink(header.Get("Link"))
	}

	c.logger.Debug("fetched commit history", "path", path, "commits", len(commits))
	return commits, nil
}

// FetchCommit returns the most recent commit touching path as of ref (the default branch when empty)
func (c *Client) FetchCommit(ctx context.Context, path, ref string) (model.Commit, error) {
	query := url.Values{}
	query.Set("path", path)
	query.Set("per_page", "1")
	if ref != "" {
		query.Set("sha", ref)
	}

	body, _, err := c.get(ctx, "get commit", c.repoURL("commits", query), MediaTypeDefault)
	if err != nil {
		return model.Commit{}, err
	}

	commits, err := decodeCommits(body, path)
	if err != nil {
		return model.Commit{}, err
	}
	if len(commits) == 0 {
		return model.Commit{}, fmt.Errorf("get commit: no commits for %s at %q: %w", path, ref, model.ErrNotFound)
	}
	return commits[0], nil
}

func (c *Client) repoURL(endpoint string, query url.Values) string {
	u := fmt.Sprintf("%s/repos/%s/%s/%s", c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), endpoint)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// get performs a rate limited GET and classifies failures
func (c *Client) get(ctx context.Context, op, rawURL, accept string) ([]byte, http.Header, error) {
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return nil, nil, fmt.Errorf("%s: rate limit: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: create request: %w", op, err)
	}

	req.Header.Set("Accept", accept)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	c.logger.Debug("github request", "op", op, "url", rawURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return nil, nil, &model.TransientFetchError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if reset, ok := rateLimitReset(resp.Header, time.Now()); ok {
		c.logger.Warn("github rate limit reached", "op", op, "resume_at", reset.Format(time.RFC3339))
		c.limiter.PauseUntil(rawURL, reset)
	}

	if err := checkStatus(op, resp); err != nil {
		return nil, nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, nil, &model.TransientFetchError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, nil, fmt.Errorf("%s: response exceeds %d bytes", op, c.maxBytes)
	}

	return body, resp.Header, nil
}

func checkStatus(op string, resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	case code == http.StatusTooManyRequests || code >= 500:
		return &model.TransientFetchError{Op: op, StatusCode: code, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	case code == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return &model.TransientFetchError{Op: op, StatusCode: code, Err: errors.New("rate limit exceeded")}
	default:
		return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
}

// rateLimitReset reads when a throttled host accepts requests again, from
// Retry-After or from an exhausted X-RateLimit-Remaining with its reset epoch
func rateLimitReset(h http.Header, now time.Time) (time.Time, bool) {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second), true
		}
	}
	if h.Get("X-RateLimit-Remaining") == "0" {
		if epoch, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			return time.Unix(epoch, 0), true
		}
	}
	return time.Time{}, false
}

func escapePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// nextLink extracts the rel="next" target of a Link header
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(sections[0]), "<>")
		for _, param := range sections[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}

type apiSignature struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

type apiCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message   string       `json:"message"`
		URL       string       `json:"url"`
		Author    apiSignature `json:"author"`
		Committer apiSignature `json:"committer"`
	} `json:"commit"`
}

func decodeCommits(body []byte, path string) ([]model.Commit, error) {
	var raw []apiCommit
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode commits: %w", err)
	}

	commits := make([]model.Commit, len(raw))
	for i, rc := range raw {
		commits[i] = model.Commit{
			SHA:       rc.SHA,
			Message:   rc.Commit.Message,
			URL:       rc.Commit.URL,
			Author:    model.Signature(rc.Commit.Author),
			Committer: model.Signature(rc.Commit.Committer),
			FilePath:  path,
		}
		if ts, ok := provenance.ParseDate(rc.Commit.Committer.Date); ok {
			commits[i].Timestamp = ts
		}
	}
	return commits, nil
}

// Chronological orders commits oldest first and drops repeated SHAs,
// keeping the most recent occurrence. Input is most recent first.
func Chronological(commits []model.Commit) []model.Commit {
	seen := make(map[string]bool, len(commits))
	out := make([]model.Commit, 0, len(commits))

	for _, c := range commits {
		if seen[c.SHA] {
			continue
		}
		seen[c.SHA] = true
		out = append(out, c)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
