package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/etlconv/internal/model"
)

// Summarizer produces optional changelog summaries. A Summarizer without a
// provider is disabled and produces nothing.
type Summarizer struct {
	provider Provider
	config   Config
}

// NewSummarizer creates a summarizer for the configured provider
func NewSummarizer(config Config) (*Summarizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	return &Summarizer{provider: provider, config: config}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// GenerateSummary summarizes a changelog. Provider failures are reported as
// warnings on the summary; they never fail the changelog run.
func (s *Summarizer) GenerateSummary(ctx context.Context, req SummarizeRequest) (*model.LLMSummary, error) {
	if !s.IsEnabled() {
		return nil, nil
	}

	summary := &model.LLMSummary{
		Provider:       s.provider.Name(),
		Model:          s.config.Model,
		StrictEvidence: s.config.StrictEvidence,
	}

	if !s.provider.IsAvailable(ctx) {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("LLM provider %s is not available (check API key and endpoint)", summary.Provider))
		return summary, nil
	}
	summary.Enabled = true

	if len(req.EvidenceURLs) == 0 {
		req.EvidenceURLs = EvidenceURLs(req.Commits)
	}
	if req.Model == "" {
		req.Model = s.config.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.config.MaxTokens
	}

	resp, err := s.provider.Summarize(ctx, req)
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("LLM summarization failed: %v", err))
		return summary, nil
	}

	summary.SummaryMD = resp.Summary
	if resp.Model != "" {
		summary.Model = resp.Model
	}
	summary.Warnings = append(summary.Warnings,
		fmt.Sprintf("Tokens used: %d", resp.TokensUsed),
		fmt.Sprintf("Verified %d citations against %d commit URLs", len(resp.CitedURLs), len(req.EvidenceURLs)))
	for _, u := range resp.Uncited {
		summary.Warnings = append(summary.Warnings, "Cited URL is not commit evidence: "+u)
	}

	return summary, nil
}

// RenderSeparateMarkdown renders a summary as a standalone markdown document
func RenderSeparateMarkdown(summary *model.LLMSummary) string {
	if summary == nil || !summary.Enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString("# LLM Summary\n\n")
	b.WriteString("> **GENERATED CONTENT.** This summary was written by a language model from the computed change events. ")
	b.WriteString("The change events themselves were determined independently and are not affected by it.\n\n")

	fmt.Fprintf(&b, "- **Provider:** %s\n", summary.Provider)
	if summary.Model != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", summary.Model)
	}
	fmt.Fprintf(&b, "- **Strict Evidence Mode:** %t\n\n", summary.StrictEvidence)

	if summary.SummaryMD == "" {
		b.WriteString("_No summary generated._\n")
	} else {
		b.WriteString(summary.SummaryMD)
		b.WriteString("\n")
	}

	if len(summary.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range summary.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}
