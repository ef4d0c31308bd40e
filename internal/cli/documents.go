package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// documentsCmd lists the tracked documents
var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List tracked ETL conventions documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Repository: %s/%s\n\n", cfg.GitHub.Owner, cfg.GitHub.Repo)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPATH")
		for _, d := range cfg.Documents {
			fmt.Fprintf(w, "%s\t%s\n", d.ID(), d.Path)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(documentsCmd)
}
