package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/etlconv/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize generates a changelog summary with strict evidence mode
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	// Document is the tracked document the history belongs to
	Document model.TrackedDocument

	// Commits are the revisions of the document, oldest first
	Commits []model.Commit

	// Events are the change events produced for those revisions
	Events []model.ChangeEvent

	// EvidenceURLs is the STRICT allowlist of URLs the LLM can cite.
	// When empty, the commit URLs are used.
	EvidenceURLs []string

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	// Summary is the generated summary text
	Summary string

	// CitedURLs are the URLs the LLM actually cited (for verification)
	CitedURLs []string

	// Uncited are cited URLs outside the evidence list. Only set when
	// strict evidence is off; strict mode fails instead.
	Uncited []string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for OpenAI-compatible endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// StrictEvidence enforces the URL allowlist
	StrictEvidence bool

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:       "", // Disabled by default
		Timeout:        30,
		StrictEvidence: true,
		MaxTokens:      1000,
	}
}

const (
	maxPromptURLs    = 20
	maxPromptChanges = 15
)

// EvidenceURLs returns the commit URLs of a history, in order, without duplicates
func EvidenceURLs(commits []model.Commit) []string {
	seen := make(map[string]bool, len(commits))
	var urls []string
	for _, c := range commits {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		urls = append(urls, c.URL)
	}
	return urls
}

// BuildPrompt constructs the default changelog prompt with strict evidence mode
func BuildPrompt(req SummarizeRequest) string {
	evidence := req.EvidenceURLs
	if len(evidence) == 0 {
		evidence = EvidenceURLs(req.Commits)
	}

	adds, changes := countEvents(req.Events)

	var b strings.Builder
	fmt.Fprintf(&b, `You are summarizing the revision history of an ETL conventions document. The change events below were computed mechanically; do not add changes that are not listed.

CRITICAL RULES:
1. You MUST ONLY cite URLs from this allowed list:
%s

2. DO NOT infer, speculate, or cite external sources beyond this list.
3. Describe what changed in the data model (tables, fields, requirements, types).
4. If a change has no obvious purpose, say so rather than guessing one.

History Summary:
- Document: %s
- Revisions: %d
- Entities Added: %d
- Entities Changed: %d

Revisions:
`, joinURLs(evidence), req.Document.ID(), len(req.Commits), adds, changes)

	for _, c := range req.Commits {
		fmt.Fprintf(&b, "- %s %s %s\n", shortSHA(c.SHA), c.Committer.Date, firstLine(c.Message))
	}

	b.WriteString("\nChanges:\n")
	listed := 0
	for _, e := range req.Events {
		if e.IsAdd() || e.Attrs == nil {
			continue
		}
		if listed >= maxPromptChanges {
			fmt.Fprintf(&b, "- ... and %d more changes\n", changes-listed)
			break
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", e.Refs.Current.Name, shortSHA(e.Refs.Current.Batch), describeDiff(e.Attrs))
		listed++
	}
	if listed == 0 {
		b.WriteString("- (no changes between revisions)\n")
	}

	b.WriteString("\nProvide a 3-4 sentence summary of how the document evolved.")

	return b.String()
}

// Helper functions

func joinURLs(urls []string) string {
	if len(urls) == 0 {
		return "(No evidence URLs available)"
	}
	var b strings.Builder
	for i, url := range urls {
		if i >= maxPromptURLs {
			fmt.Fprintf(&b, "\n... and %d more URLs", len(urls)-maxPromptURLs)
			break
		}
		fmt.Fprintf(&b, "\n- %s", url)
	}
	return b.String()
}

func countEvents(events []model.ChangeEvent) (adds, changes int) {
	for _, e := range events {
		if e.IsAdd() {
			adds++
		} else {
			changes++
		}
	}
	return adds, changes
}

func describeDiff(d *model.ChangeDiff) string {
	var parts []string
	for _, diff := range []model.Diff{d.Attrs, d.Refs} {
		keys := make([]string, 0, len(diff))
		for k := range diff {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			c := diff[k]
			switch c.Action {
			case model.ActionAdd:
				parts = append(parts, fmt.Sprintf("%s added (%v)", k, c.Value))
			case model.ActionRemove:
				parts = append(parts, fmt.Sprintf("%s removed (was %v)", k, c.Previous))
			default:
				parts = append(parts, fmt.Sprintf("%s %v -> %v", k, c.Previous, c.Value))
			}
		}
	}
	return strings.Join(parts, "; ")
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
