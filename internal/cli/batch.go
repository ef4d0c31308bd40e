package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/etlconv/internal/model"
	"github.com/ppiankov/etlconv/internal/pipeline"
	"github.com/ppiankov/etlconv/internal/worker"
)

var (
	concurrency int
	outputDir   string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [document...]",
	Short: "Write changelogs for several tracked documents in parallel",
	Long: `Batch builds the changelog of every tracked document (or the ones named)
and writes one JSON file per document to the output directory. Documents run
concurrently and share the content cache; each has its own change history.

Example:
  etlconv batch
  etlconv batch pedsnet i2b2 --concurrency 2 --output-dir ./changelogs`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of documents processed at once")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./etlconv-changelogs", "output directory for changelogs")
	batchCmd.Flags().BoolVar(&compactOut, "compact", false, "write compact JSON")
}

// changelogJob builds the changelog of one document
type changelogJob struct {
	pipeline *pipeline.Pipeline
	document model.TrackedDocument
}

type changelogResult struct {
	document model.TrackedDocument
	result   *pipeline.ChangelogResult
	err      error
}

func (r *changelogResult) GetError() error {
	return r.err
}

func (j *changelogJob) Execute(ctx context.Context) worker.Result {
	result, err := j.pipeline.Changelog(ctx, j.document)
	return &changelogResult{document: j.document, result: result, err: err}
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Summaries are per-document and on request only
	cfg.LLM.Provider = ""

	docs := cfg.Documents
	if len(args) > 0 {
		docs = make([]model.TrackedDocument, 0, len(args))
		for _, id := range args {
			doc, err := resolveDocument(cfg, id)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents to process")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Documents:    %d\n", len(docs))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", timeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// One pipeline so every document shares the rate limiter and content cache
	p := pipeline.NewPipeline(cfg, pipeline.WithLogger(newLogger()))

	pool := worker.NewPool(ctx, concurrency)
	pool.Start()
	for _, doc := range docs {
		if !pool.Submit(&changelogJob{pipeline: p, document: doc}) {
			break
		}
	}
	results := pool.Wait()

	r := renderer(cfg.Output.Indent)
	successCount := 0
	failureCount := 0

	// Documents never started before the context ended have no result
	notRun := len(docs) - len(results)
	for _, res := range results {
		if res == nil {
			notRun++
			continue
		}
		cr := res.(*changelogResult)
		if cr.err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", cr.document.ID(), cr.err)
			continue
		}

		path := filepath.Join(outputDir, sanitizeFilename(cr.document.ID())+".json")
		if err := r.RenderJSON(cr.result, path); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", cr.document.ID(), err)
			continue
		}

		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (%d revisions, %d events)\n", cr.document.ID(), len(cr.result.Commits), len(cr.result.Events))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount+notRun)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount+notRun > 0 {
		return fmt.Errorf("%d of %d documents failed", failureCount+notRun, len(docs))
	}
	return nil
}

// sanitizeFilename turns a document ID such as "pedsnet/2.0.0" into a file name
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = replacer.Replace(s)

	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
