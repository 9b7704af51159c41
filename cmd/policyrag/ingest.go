package main

import (
	"github.com/spf13/cobra"

	"policyrag/internal/ingest"
)

var (
	ingestForce bool
	ingestJSON  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest PDF files into the vector index",
	Long: `Ingests a PDF file or every PDF under a folder, in lexical path order.

Files already in the ledger with the same checksum are skipped unless
--force is given. A failing file is reported and does not stop the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-ingest files already in the ledger")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, err := rt.Ingest(cmd.Context())
	if err != nil {
		return err
	}
	report, err := svc.IngestFolder(cmd.Context(), args[0], ingestForce)
	if err != nil {
		return err
	}
	if ingestJSON {
		return printJSON(cmd, report)
	}
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, r ingest.Report) {
	for _, f := range r.Files {
		switch f.Status {
		case ingest.StatusFailed:
			cmd.Printf("  %-8s %s: %s\n", f.Status, f.Path, f.Error)
		case ingest.StatusIngested:
			cmd.Printf("  %-8s %s (%d chunks)\n", f.Status, f.Path, f.Chunks)
		default:
			cmd.Printf("  %-8s %s\n", f.Status, f.Path)
		}
	}
	cmd.Printf("\n%d ingested, %d skipped, %d empty, %d failed, %d chunks written\n",
		r.Ingested, r.Skipped, r.Empty, r.Failed, r.Chunks)
}
