package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/etlconv/internal/model"
)

var (
	initForce bool
	initPath  string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage etlconv configuration",
	Long: `Manage etlconv configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (ETLCONV_*, GITHUB_AUTH_TOKEN, OPENAI_API_KEY)
3. Config file (~/.etlconv/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Print the configuration after merging defaults, config file, environment and flags. Credentials are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", used)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		return writeYAML(cmd.OutOrStdout(), maskSecrets(cfg))
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.ConfigFileUsed()
		if path == "" {
			var err error
			if path, err = defaultConfigPath(); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long:  `Create a configuration file with every option set to its default. Defaults to ~/.etlconv/config.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		path := initPath
		if path == "" {
			if path, err = defaultConfigPath(); err != nil {
				return err
			}
		}

		if _, statErr := os.Stat(path); statErr == nil && !initForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		if err := writeDefaultConfig(f); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created default configuration: %s\n", path)
		fmt.Fprintf(cmd.OutOrStdout(), "  View it with: etlconv config show\n")
		return nil
	},
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".etlconv", "config.yaml"), nil
}

// maskSecrets returns a copy of cfg with credentials replaced
func maskSecrets(cfg *model.Config) *model.Config {
	masked := *cfg
	if masked.GitHub.Token != "" {
		masked.GitHub.Token = "<set>"
	}
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = "<set>"
	}
	return &masked
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// writeDefaultConfig writes the built-in configuration as commented YAML
func writeDefaultConfig(w io.Writer) error {
	const header = `# etlconv configuration file
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (ETLCONV_*)
#   3. This config file
#   4. Built-in defaults

`
	const footer = `
# Credentials are better kept in the environment:
#   export GITHUB_AUTH_TOKEN=ghp_...
#   export OPENAI_API_KEY=sk-...
`

	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := writeYAML(w, model.DefaultConfig()); err != nil {
		return err
	}
	if _, err := io.WriteString(w, footer); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().StringVar(&initPath, "path", "", "write to this file instead of ~/.etlconv/config.yaml")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd)
}
