package main

import (
	"time"

	"github.com/spf13/cobra"
)

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List ingested documents from the ledger",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

func init() {
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	led, err := rt.Ledger()
	if err != nil {
		return err
	}
	docs, err := led.List(cmd.Context())
	if err != nil {
		return err
	}
	if documentsJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}
	for _, d := range docs {
		cmd.Printf("%s  %-40s %4d chunks  %s\n", d.IngestedAt.Local().Format(time.DateTime), d.FileName, d.Chunks, d.Source)
		if d.Summary != "" {
			cmd.Printf("    %s\n", snippet(d.Summary, 200))
		}
	}
	return nil
}
