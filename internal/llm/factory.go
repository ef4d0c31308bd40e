package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/etlconv/internal/model"
)

// DefaultOllamaURL is the OpenAI-compatible endpoint of a local Ollama server
const DefaultOllamaURL = "http://localhost:11434/v1"

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "ollama":
		// Ollama speaks the OpenAI protocol and ignores the key
		if config.BaseURL == "" {
			config.BaseURL = DefaultOllamaURL
		}
		if config.APIKey == "" {
			config.APIKey = "ollama"
		}
		p, err := NewOpenAIProvider(config)
		if err != nil {
			return nil, err
		}
		p.name = "ollama"
		return p, nil

	case "":
		// No provider configured - return nil (LLM disabled)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the llm section of the configuration. Proxy
// settings are shared with the GitHub client.
func ConfigFromModel(cfg *model.Config) Config {
	return Config{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Timeout:        cfg.LLM.Timeout,
		StrictEvidence: cfg.LLM.StrictEvidence,
		MaxTokens:      cfg.LLM.MaxTokens,
		HTTPProxy:      cfg.GitHub.HTTPProxy,
		HTTPSProxy:     cfg.GitHub.HTTPSProxy,
		NoProxy:        cfg.GitHub.NoProxy,
	}
}
