package model

// LLMSummary is an optional generated summary of a changelog.
// It is reported next to the change events and never alters them.
type LLMSummary struct {
	Enabled        bool     `json:"enabled"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`
	StrictEvidence bool     `json:"strict_evidence"`      // Whether citation enforcement was enabled
	SummaryMD      string   `json:"summary_md,omitempty"` // Markdown summary
	Warnings       []string `json:"warnings,omitempty"`
}
