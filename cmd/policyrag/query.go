package main

import (
	"strings"

	"github.com/spf13/cobra"

	"policyrag/internal/retrieval"
)

var (
	askJSON           bool
	retrieveK         int
	retrieveThreshold float64
	retrieveJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Show the chunks retrieved for a query",
	Long: `Runs retrieval only, without the language model. Scores are similarities
in [0,1]; chunks below the threshold are dropped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the full result as JSON")
	retrieveCmd.Flags().IntVar(&retrieveK, "k", 0, "maximum chunks (0 = configured)")
	retrieveCmd.Flags().Float64Var(&retrieveThreshold, "threshold", -1, "minimum score (negative = configured)")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(askCmd, retrieveCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	gen, err := rt.Answerer(cmd.Context())
	if err != nil {
		return err
	}
	res, err := gen.Answer(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if askJSON {
		return printJSON(cmd, res)
	}
	cmd.Println(res.Answer)
	if len(res.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, s := range res.Sources {
			cmd.Printf("  - %s, page %d\n", s.DocumentName, s.PageNumber)
		}
	}
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	r, err := rt.Retriever(cmd.Context())
	if err != nil {
		return err
	}
	p := retrieval.Params{K: retrieveK}
	if retrieveThreshold >= 0 {
		t := retrieveThreshold
		p.Threshold = &t
	}
	results, err := r.RetrieveWith(cmd.Context(), strings.Join(args, " "), p)
	if err != nil {
		return err
	}
	if retrieveJSON {
		return printJSON(cmd, results)
	}
	if len(results) == 0 {
		cmd.Println("No chunks above the threshold.")
		return nil
	}
	for i, res := range results {
		md := res.Document.Metadata
		cmd.Printf("[%d] %s p.%d %s (%.2f)\n", i+1, md.FileName, md.PageNumber, md.Type, res.Score)
		cmd.Printf("    %s\n", snippet(res.Document.PageContent, 160))
	}
	return nil
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
