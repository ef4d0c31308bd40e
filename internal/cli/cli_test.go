package cli

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/etlconv/internal/model"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pedsnet/2.0.0", "pedsnet_2.0.0"},
		{"i2b2", "i2b2"},
		{"a b:c", "a-b_c"},
		{strings.Repeat("x", 120), strings.Repeat("x", 100)},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveDocument(t *testing.T) {
	cfg := model.DefaultConfig()

	doc, err := resolveDocument(cfg, "pedsnet/2.0.0")
	if err != nil {
		t.Fatalf("Expected document, got %v", err)
	}
	if doc.Name != "pedsnet" {
		t.Errorf("Expected pedsnet, got %s", doc.Name)
	}

	if _, err := resolveDocument(cfg, "i2b2"); err != nil {
		t.Errorf("Expected lookup by name to succeed, got %v", err)
	}

	_, err = resolveDocument(cfg, "omop")
	if err == nil {
		t.Fatal("Expected error for unknown document")
	}
	if !strings.Contains(err.Error(), "pedsnet/2.0.0") {
		t.Errorf("Expected error to list tracked documents, got %v", err)
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDefaultConfig(&buf); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}

	if !strings.HasPrefix(buf.String(), "# etlconv configuration file") {
		t.Error("Expected header comment")
	}

	var cfg model.Config
	if err := yaml.Unmarshal(buf.Bytes(), &cfg); err != nil {
		t.Fatalf("Written config does not parse: %v", err)
	}

	want := model.DefaultConfig()
	if cfg.GitHub.Owner != want.GitHub.Owner || cfg.GitHub.Repo != want.GitHub.Repo {
		t.Errorf("Unexpected repository %s/%s", cfg.GitHub.Owner, cfg.GitHub.Repo)
	}
	if cfg.GitHub.Timeout != want.GitHub.Timeout {
		t.Errorf("Expected timeout %v, got %v", want.GitHub.Timeout, cfg.GitHub.Timeout)
	}
	if len(cfg.Documents) != len(want.Documents) {
		t.Errorf("Expected %d documents, got %d", len(want.Documents), len(cfg.Documents))
	}
	if cfg.Provenance.ChangelogDomain != want.Provenance.ChangelogDomain {
		t.Errorf("Unexpected changelog domain %s", cfg.Provenance.ChangelogDomain)
	}
}

func TestMaskSecrets(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.GitHub.Token = "ghp_secret"
	cfg.LLM.APIKey = "sk-secret"

	masked := maskSecrets(cfg)
	if masked.GitHub.Token != "<set>" || masked.LLM.APIKey != "<set>" {
		t.Errorf("Expected credentials to be masked, got %q and %q", masked.GitHub.Token, masked.LLM.APIKey)
	}
	if cfg.GitHub.Token != "ghp_secret" {
		t.Error("Expected the original config to be left alone")
	}

	var buf bytes.Buffer
	if err := writeYAML(&buf, masked); err != nil {
		t.Fatalf("writeYAML failed: %v", err)
	}
	if strings.Contains(buf.String(), "secret") {
		t.Errorf("Secret leaked into output:\n%s", buf.String())
	}
}

func TestMaskSecrets_Unset(t *testing.T) {
	masked := maskSecrets(model.DefaultConfig())
	if masked.GitHub.Token != "" || masked.LLM.APIKey != "" {
		t.Error("Expected unset credentials to stay empty")
	}
}
