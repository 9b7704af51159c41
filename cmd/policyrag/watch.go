package main

import (
	"time"

	"github.com/spf13/cobra"

	"policyrag/internal/watch"
)

var (
	watchDebounce    time.Duration
	watchInitialScan bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "Ingest PDFs as they are added or changed",
	Long: `Watches a folder tree and ingests new or modified PDFs once they have
been quiet for the debounce interval. Subfolders created later are watched
too. Unchanged files are skipped by checksum.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a file is ingested")
	watchCmd.Flags().BoolVar(&watchInitialScan, "initial-scan", true, "ingest PDFs already present at startup")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, err := rt.Ingest(cmd.Context())
	if err != nil {
		return err
	}
	w := watch.New(args[0], svc,
		watch.WithDebounce(watchDebounce),
		watch.WithInitialScan(watchInitialScan),
		watch.WithLogger(rt.log),
	)
	return w.Run(cmd.Context())
}
