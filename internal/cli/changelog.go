package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/etlconv/internal/llm"
	"github.com/ppiankov/etlconv/internal/pipeline"
)

var (
	summarize   bool
	summaryOut  string
	llmProvider string
	llmModel    string
)

// changelogCmd represents the changelog command
var changelogCmd = &cobra.Command{
	Use:   "changelog <document>",
	Short: "Replay the history of a tracked document and report changes",
	Long: `Changelog fetches every revision of a tracked document, oldest first,
and reports an Add event the first time a model, table or field appears and a
Change event, with attribute and reference diffs, whenever it differs from its
previous revision.

With --summarize a language model writes a short summary of the history. It
may only cite commit URLs of the document and never alters the events.

Example:
  etlconv changelog pedsnet/2.0.0 --out pedsnet-changelog.json
  etlconv changelog i2b2 --summarize --llm-provider ollama --llm-model llama3`,
	Args: cobra.ExactArgs(1),
	RunE: runChangelog,
}

func init() {
	rootCmd.AddCommand(changelogCmd)

	changelogCmd.Flags().StringVarP(&outPath, "out", "o", "-", "output JSON path (- for stdout)")
	changelogCmd.Flags().BoolVar(&compactOut, "compact", false, "write compact JSON")

	// LLM flags
	changelogCmd.Flags().BoolVar(&summarize, "summarize", false, "add an LLM summary of the history")
	changelogCmd.Flags().StringVar(&summaryOut, "summary-out", "", "also write the summary as markdown to this path")
	changelogCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, ollama); overrides config")
	changelogCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name; overrides config")
}

func runChangelog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := resolveDocument(cfg, args[0])
	if err != nil {
		return err
	}

	if summarize {
		if llmProvider != "" {
			cfg.LLM.Provider = llmProvider
		}
		if llmModel != "" {
			cfg.LLM.Model = llmModel
		}
		if cfg.LLM.Provider == "" {
			cfg.LLM.Provider = "openai"
		}
		if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	} else {
		cfg.LLM.Provider = ""
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "Changelog: %s (%s)\n", doc.ID(), doc.Path)
		fmt.Fprintf(os.Stderr, "Workers: %d\n", cfg.Concurrency.Workers)
		fmt.Fprintf(os.Stderr, "Cache: %v\n\n", cfg.Cache.Enabled)
	}

	p := pipeline.NewPipeline(cfg, pipeline.WithLogger(newLogger()))
	result, err := p.Changelog(ctx, doc)
	if err != nil {
		return fmt.Errorf("changelog failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Replayed %d revisions\n", len(result.Commits))
		fmt.Fprintf(os.Stderr, "✓ Emitted %d change events\n", len(result.Events))
		for _, s := range result.Skipped {
			fmt.Fprintf(os.Stderr, "✗ Skipped %s: %s\n", s.SHA, s.Reason)
		}
	}

	if summarize {
		p.Summarize(ctx, result)
		if result.Summary != nil {
			for _, w := range result.Summary.Warnings {
				fmt.Fprintf(os.Stderr, "LLM: %s\n", w)
			}
		}
	}

	r := renderer(cfg.Output.Indent)
	if err := r.RenderJSON(result, outPath); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if summaryOut != "" && result.Summary != nil && result.Summary.Enabled {
		if err := r.RenderMarkdown(llm.RenderSeparateMarkdown(result.Summary), summaryOut); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to write LLM summary: %v\n", err)
		} else if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote LLM Summary: %s\n", summaryOut)
		}
	}

	return nil
}

