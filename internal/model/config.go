package model

import "time"

// Config holds the complete etlconv configuration
type Config struct {
	GitHub       GitHubConfig       `yaml:"github" mapstructure:"github"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Provenance   ProvenanceConfig   `yaml:"provenance" mapstructure:"provenance"`
	Documents    []TrackedDocument  `yaml:"documents" mapstructure:"documents"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// GitHubConfig configures access to the source repository
type GitHubConfig struct {
	APIURL       string        `yaml:"api_url" mapstructure:"api_url"`
	Owner        string        `yaml:"owner" mapstructure:"owner"`
	Repo         string        `yaml:"repo" mapstructure:"repo"`
	Token        string        `yaml:"token,omitempty" mapstructure:"token"` // Prefer GITHUB_AUTH_TOKEN
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the content cache
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	DiskDir         string        `yaml:"disk_dir,omitempty" mapstructure:"disk_dir"` // Empty disables the disk layer
	LockTimeout     time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// RateLimitingConfig configures per-host request limits
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig configures worker counts
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"` // Concurrent revision fetches
}

// ProvenanceConfig configures entity generation
type ProvenanceConfig struct {
	Domain          string `yaml:"domain" mapstructure:"domain"`
	ChangelogDomain string `yaml:"changelog_domain" mapstructure:"changelog_domain"`
	ServiceID       string `yaml:"service_id" mapstructure:"service_id"`
	ServiceName     string `yaml:"service_name" mapstructure:"service_name"`
	// NamespaceTables prefixes table identities with the model name
	NamespaceTables bool `yaml:"namespace_tables" mapstructure:"namespace_tables"`
}

// LLMConfig configures the optional changelog summary
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"` // "openai" or "" (disabled)
	Model          string `yaml:"model" mapstructure:"model"`
	APIKey         string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	StrictEvidence bool   `yaml:"strict_evidence" mapstructure:"strict_evidence"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OutputConfig configures rendering
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	Indent  bool `yaml:"indent" mapstructure:"indent"`
}

// DefaultDocuments are the ETL conventions documents tracked out of the box
func DefaultDocuments() []TrackedDocument {
	return []TrackedDocument{
		{Name: "pedsnet", Version: "2.0.0", Path: "PEDSnet/V2/docs/Pedsnet_CDM_V2_OMOPV5_ETL_Conventions.md"},
		{Name: "i2b2", Version: "2.0.0", Path: "i2b2/V2/docs/i2b2_pedsnet_v2_etl_conventions.md"},
	}
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIURL:       "https://api.github.com",
			Owner:        "PEDSnet",
			Repo:         "Data_Models",
			Timeout:      20 * time.Second,
			UserAgent:    "etlconv/0.2 (+https://github.com/ppiankov/etlconv)",
			MaxBodyBytes: 10_000_000,
			MaxRetries:   3,
		},
		Cache: CacheConfig{
			Enabled:         true,
			CleanupInterval: 10 * time.Minute,
			LockTimeout:     3 * time.Second,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Provenance: ProvenanceConfig{
			Domain:          "pedsnet.etlconv",
			ChangelogDomain: "pedsnet.etlconv.changelog",
			ServiceID:       "pedsnet/etlconv",
			ServiceName:     "PEDSnet ETL Conventions Service",
		},
		Documents: DefaultDocuments(),
		LLM: LLMConfig{
			Timeout:        30,
			StrictEvidence: true,
			MaxTokens:      1000,
		},
		Output: OutputConfig{
			Indent: true,
		},
	}
}

// FindDocument looks up a tracked document by ID ("name/version") or name
func (c *Config) FindDocument(id string) (TrackedDocument, bool) {
	for _, d := range c.Documents {
		if d.ID() == id {
			return d, true
		}
	}
	for _, d := range c.Documents {
		if d.Name == id {
			return d, true
		}
	}
	return TrackedDocument{}, false
}
