package llm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/etlconv/internal/util"
)

const (
	defaultMaxTokens = 1000
	defaultTimeout   = 30 * time.Second

	systemPrompt = "You summarize data model changelogs with strict adherence to evidence constraints."
)

var urlPattern = regexp.MustCompile(`https?://[^\s\)\]>]+`)

// CitationLeakError reports URLs in a summary that are not commit evidence
type CitationLeakError struct {
	URLs []string
}

func (e *CitationLeakError) Error() string {
	return "citation leak: LLM cited disallowed URLs: " + strings.Join(e.URLs, ", ")
}

// OpenAIProvider talks to the OpenAI Chat Completions API or any server
// speaking the same protocol
type OpenAIProvider struct {
	client *openai.Client
	config Config
	name   string
}

// NewOpenAIProvider creates a provider. An API key is required; local
// OpenAI compatible servers accept any placeholder.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)
	cc.HTTPClient = &http.Client{Transport: transport}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cc),
		config: config,
		name:   "openai",
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// IsAvailable reports whether the endpoint answers an authenticated call
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Summarize asks the model for a changelog summary and checks every URL it
// cites against the request's evidence
func (p *OpenAIProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	if len(req.EvidenceURLs) == 0 {
		req.EvidenceURLs = EvidenceURLs(req.Commits)
	}
	chat := p.chatRequest(req)

	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", p.name)
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	cited := extractURLs(summary)
	uncited := disallowed(cited, req.EvidenceURLs)

	if len(uncited) > 0 && p.config.StrictEvidence {
		return nil, &CitationLeakError{URLs: uncited}
	}

	return &SummarizeResponse{
		Summary:    summary,
		CitedURLs:  cited,
		Uncited:    uncited,
		Model:      chat.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// chatRequest resolves defaults from the request, then the provider config
func (p *OpenAIProvider) chatRequest(req SummarizeRequest) openai.ChatCompletionRequest {
	prompt := req.Prompt
	if prompt == "" {
		prompt = BuildPrompt(req)
	}

	model := firstNonEmpty(req.Model, p.config.Model, openai.GPT4oMini)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	}
}

// extractURLs returns the distinct http(s) URLs in text in order of appearance
func extractURLs(text string) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// disallowed returns the cited URLs missing from allowed
func disallowed(cited, allowed []string) []string {
	ok := make(map[string]struct{}, len(allowed))
	for _, u := range allowed {
		ok[u] = struct{}{}
	}

	var out []string
	for _, u := range cited {
		if _, found := ok[u]; !found {
			out = append(out, u)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
