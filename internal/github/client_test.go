package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/etlconv/internal/model"
	"github.com/ppiankov/etlconv/internal/worker"
)

const commitsJSON = `[
  {
    "sha": "c3",
    "commit": {
      "message": "Clarify person_id",
      "url": "https://api.github.com/repos/PEDSnet/Data_Models/git/commits/c3",
      "author": {"name": "Ada", "email": "ada@example.org", "date": "2016-03-03T10:00:00Z"},
      "committer": {"name": "Grace", "email": "grace@example.org", "date": "2016-03-03T11:00:00Z"}
    }
  },
  {
    "sha": "c2",
    "commit": {
      "message": "Add visit table",
      "url": "https://api.github.com/repos/PEDSnet/Data_Models/git/commits/c2",
      "author": {"name": "Ada", "email": "ada@example.org", "date": "2016-03-02T10:00:00Z"},
      "committer": {"name": "Ada", "email": "ada@example.org", "date": "2016-03-02T10:00:00Z"}
    }
  }
]`

func newTestClient(serverURL string) *Client {
	return NewClient(model.GitHubConfig{
		APIURL:     serverURL,
		Owner:      "PEDSnet",
		Repo:       "Data_Models",
		Token:      "secret",
		Timeout:    5 * time.Second,
		UserAgent:  "test-agent",
		MaxRetries: 3,
	})
}

func noBackoff(t *testing.T) {
	t.Helper()
	orig := retryBackoff
	retryBackoff = func(int) time.Duration { return 0 }
	t.Cleanup(func() { retryBackoff = orig })
}

func TestFetchText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/PEDSnet/Data_Models/contents/PEDSnet/V2/docs/ETL Conventions.md" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ref"); got != "abc123" {
			t.Errorf("Expected ref abc123, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != MediaTypeRaw {
			t.Errorf("Expected raw media type, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "token secret" {
			t.Errorf("Unexpected Authorization header: %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("Unexpected User-Agent: %q", got)
		}
		_, _ = fmt.Fprint(w, "# PEDSnet ETL Conventions")
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).FetchText(context.Background(), "PEDSnet/V2/docs/ETL Conventions.md", "abc123")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "# PEDSnet ETL Conventions" {
		t.Errorf("Unexpected text: %q", text)
	}
}

func TestFetchText_FloatingRevision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("ref") {
			t.Errorf("Expected no ref parameter, got %q", r.URL.RawQuery)
		}
		_, _ = fmt.Fprint(w, "head")
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).FetchText(context.Background(), "a.md", ""); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestFetchText_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchText(context.Background(), "missing.md", "abc123")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if model.IsTransient(err) {
		t.Error("Expected 404 not to be transient")
	}
}

func TestFetchText_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		header    map[string]string
		transient bool
	}{
		{http.StatusInternalServerError, nil, true},
		{http.StatusBadGateway, nil, true},
		{http.StatusServiceUnavailable, nil, true},
		{http.StatusTooManyRequests, nil, true},
		{http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, true},
		{http.StatusForbidden, nil, false},
		{http.StatusUnauthorized, nil, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).FetchText(context.Background(), "a.md", "abc123")
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := model.IsTransient(err); got != tt.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, got, tt.transient)
			}
			var tfe *model.TransientFetchError
			if tt.transient && errors.As(err, &tfe) && tfe.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, tfe.StatusCode)
			}
		})
	}
}

func TestFetchText_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).FetchText(context.Background(), "a.md", "abc123")
	if !model.IsTransient(err) {
		t.Errorf("Expected connection failure to be transient, got %v", err)
	}
}

func TestFetchText_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer server.Close()

	c := NewClient(model.GitHubConfig{APIURL: server.URL, Owner: "o", Repo: "r", MaxBodyBytes: 10})
	if _, err := c.FetchText(context.Background(), "a.md", "abc123"); err == nil {
		t.Error("Expected error for oversized body")
	}
}

func TestFetchCommits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/PEDSnet/Data_Models/commits" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("path"); got != "docs/etl.md" {
			t.Errorf("Unexpected path parameter: %q", got)
		}
		_, _ = fmt.Fprint(w, commitsJSON)
	}))
	defer server.Close()

	commits, err := newTestClient(server.URL).FetchCommits(context.Background(), "docs/etl.md")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("Expected 2 commits, got %d", len(commits))
	}

	c := commits[0]
	if c.SHA != "c3" || c.Message != "Clarify person_id" || c.FilePath != "docs/etl.md" {
		t.Errorf("Unexpected commit: %+v", c)
	}
	if c.Committer.Email != "grace@example.org" || c.Author.Date != "2016-03-03T10:00:00Z" {
		t.Errorf("Unexpected signatures: %+v %+v", c.Author, c.Committer)
	}
	if c.Timestamp == 0 {
		t.Error("Expected timestamp from committer date")
	}
}

func TestFetchCommits_Pagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/PEDSnet/Data_Models/commits?path=a.md&page=2>; rel="next", <%s/last>; rel="last"`, server.URL, server.URL))
			_, _ = fmt.Fprint(w, `[{"sha": "c2", "commit": {}}]`)
			return
		}
		_, _ = fmt.Fprint(w, `[{"sha": "c1", "commit": {}}]`)
	}))
	defer server.Close()

	commits, err := newTestClient(server.URL).FetchCommits(context.Background(), "a.md")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(commits) != 2 || commits[0].SHA != "c2" || commits[1].SHA != "c1" {
		t.Errorf("Unexpected commits: %+v", commits)
	}
}

func TestFetchCommit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sha"); got != "v2.0.0" {
			t.Errorf("Expected sha v2.0.0, got %q", got)
		}
		_, _ = fmt.Fprint(w, commitsJSON)
	}))
	defer server.Close()

	c, err := newTestClient(server.URL).FetchCommit(context.Background(), "docs/etl.md", "v2.0.0")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.SHA != "c3" {
		t.Errorf("Expected most recent commit c3, got %s", c.SHA)
	}
}

func TestFetchCommit_NoHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchCommit(context.Background(), "docs/etl.md", "")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFetchTextWithRetry_TransientThenSuccess(t *testing.T) {
	noBackoff(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).FetchTextWithRetry(context.Background(), "a.md", "abc123")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if text != "ok" {
		t.Errorf("Unexpected text: %q", text)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchTextWithRetry_AllRetriesExhausted(t *testing.T) {
	noBackoff(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchTextWithRetry(context.Background(), "a.md", "abc123")
	if !model.IsTransient(err) {
		t.Fatalf("Expected transient error after retries, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchTextWithRetry_NotFoundNotRetried(t *testing.T) {
	noBackoff(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Retrying{newTestClient(server.URL)}.FetchText(context.Background(), "a.md", "abc123")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchCommitsWithRetry_429Retried(t *testing.T) {
	noBackoff(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, commitsJSON)
	}))
	defer server.Close()

	commits, err := newTestClient(server.URL).FetchCommitsWithRetry(context.Background(), "a.md")
	if err != nil {
		t.Fatalf("Expected success after 429 retry, got %v", err)
	}
	if len(commits) != 2 || attempts.Load() != 2 {
		t.Errorf("Expected 2 commits after 2 attempts, got %d after %d", len(commits), attempts.Load())
	}
}

func TestChronological(t *testing.T) {
	commits := []model.Commit{{SHA: "c3"}, {SHA: "c2"}, {SHA: "c3"}, {SHA: "c1"}}

	got := Chronological(commits)

	want := []string{"c1", "c2", "c3"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d commits, got %d", len(want), len(got))
	}
	for i, c := range got {
		if c.SHA != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, c.SHA)
		}
	}

	if len(Chronological(nil)) != 0 {
		t.Error("Expected empty result for no commits")
	}
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`<https://api.github.com/x?page=2>; rel="next", <https://api.github.com/x?page=5>; rel="last"`, "https://api.github.com/x?page=2"},
		{`<https://api.github.com/x?page=1>; rel="prev"`, ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := nextLink(tt.header); got != tt.want {
			t.Errorf("nextLink(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestRateLimitReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name   string
		header map[string]string
		want   time.Time
		ok     bool
	}{
		{"retry after", map[string]string{"Retry-After": "30"}, now.Add(30 * time.Second), true},
		{"reset epoch", map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1700000120"}, time.Unix(1_700_000_120, 0), true},
		{"budget left", map[string]string{"X-RateLimit-Remaining": "12", "X-RateLimit-Reset": "1700000120"}, time.Time{}, false},
		{"bad retry after", map[string]string{"Retry-After": "soon"}, time.Time{}, false},
		{"none", nil, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.header {
				h.Set(k, v)
			}
			got, ok := rateLimitReset(h, now)
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Errorf("rateLimitReset() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFetchText_RateLimitPausesHost(t *testing.T) {
	reset := time.Now().Add(time.Minute).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	limiter := worker.NewLimiter(0, 1)
	client := NewClient(model.GitHubConfig{APIURL: server.URL, Owner: "PEDSnet", Repo: "Data_Models"}, WithLimiter(limiter))

	_, err := client.FetchText(context.Background(), "a.md", "abc123")
	if !model.IsTransient(err) {
		t.Fatalf("expected transient rate limit error, got %v", err)
	}
	if d := limiter.Paused(server.URL); d < 30*time.Second {
		t.Errorf("expected the host to be paused until reset, got %v", d)
	}

	// Further requests wait for the reset instead of hitting the server
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.FetchText(ctx, "a.md", "abc123"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the paused request to hit the deadline, got %v", err)
	}
}
