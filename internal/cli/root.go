package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/etlconv/internal/model"
	"github.com/ppiankov/etlconv/internal/provenance"
)

var (
	cfgFile string
	verbose bool
	timeout time.Duration
	noCache bool
	outPath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "etlconv",
	Short: "etlconv - ETL conventions extraction, provenance and changelogs",
	Long: `etlconv tracks the ETL conventions documents of a clinical data model
stored in a GitHub repository.

It parses the markdown conventions into a typed model of tables and fields,
describes every extracted fact as a provenance graph tied to the commit it
came from, and replays the document history to report what changed between
revisions.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for etlconv.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("etlconv %s\n", provenance.Version())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.etlconv/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall command timeout")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "disable the content cache (force fresh fetches)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".etlconv"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match ETLCONV_* (github.token -> ETLCONV_GITHUB_TOKEN)
	viper.SetEnvPrefix("ETLCONV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Credentials also come from the conventional variables
	_ = viper.BindEnv("github.token", "ETLCONV_GITHUB_TOKEN", "GITHUB_AUTH_TOKEN")
	_ = viper.BindEnv("llm.api_key", "ETLCONV_LLM_API_KEY", "OPENAI_API_KEY")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// envKeys are the settings AutomaticEnv can override without a config file entry
var envKeys = []string{
	"github.api_url", "github.owner", "github.repo", "github.timeout", "github.max_retries",
	"github.http_proxy", "github.https_proxy", "github.no_proxy",
	"cache.enabled", "cache.disk_dir", "cache.lock_timeout",
	"rate_limiting.requests_per_second", "rate_limiting.burst_size",
	"concurrency.workers",
	"provenance.domain", "provenance.namespace_tables",
	"llm.provider", "llm.model", "llm.base_url",
	"output.indent",
}

// loadConfig merges defaults, config file, environment and global flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if noCache {
		cfg.Cache.Enabled = false
	}
	cfg.Output.Verbose = verbose

	return cfg, nil
}

// newLogger writes structured diagnostics to stderr, at debug level when verbose
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveDocument looks up a tracked document by ID or name
func resolveDocument(cfg *model.Config, id string) (model.TrackedDocument, error) {
	doc, ok := cfg.FindDocument(id)
	if ok {
		return doc, nil
	}

	ids := make([]string, len(cfg.Documents))
	for i, d := range cfg.Documents {
		ids[i] = d.ID()
	}
	return model.TrackedDocument{}, fmt.Errorf("unknown document %q (tracked: %s)", id, strings.Join(ids, ", "))
}
