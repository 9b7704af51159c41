package main

import (
	"github.com/spf13/cobra"
)

var (
	evalQuestions int
	evalJSON      bool
	evalIngest    string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluation dataset generation and scoring",
}

var evalGenerateCmd = &cobra.Command{
	Use:   "generate [base_path] [output_file]",
	Short: "Generate an Excel evaluation dataset from sampled PDFs",
	Long: `Samples up to --num-questions PDFs under base_path and asks the language
model to write one grounded question per PDF. The items are written to an
.xlsx file with the columns question, expected_answer, question_type,
document_name, page_number and pdf_file.`,
	Args: cobra.ExactArgs(2),
	RunE: runEvalGenerate,
}

var evalRunCmd = &cobra.Command{
	Use:   "run [dataset]",
	Short: "Answer and judge every dataset question",
	Long: `Answers each question in the dataset, grades the answer with the language
model and writes <dataset>_results.xlsx next to the input.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvalRun,
}

func init() {
	evalGenerateCmd.Flags().IntVarP(&evalQuestions, "num-questions", "n", 30, "number of questions to generate")
	evalRunCmd.Flags().BoolVar(&evalJSON, "json", false, "output the report as JSON")
	evalRunCmd.Flags().StringVar(&evalIngest, "ingest", "", "ingest this folder before running")
	evalCmd.AddCommand(evalGenerateCmd, evalRunCmd)
	rootCmd.AddCommand(evalCmd)
}

func runEvalGenerate(cmd *cobra.Command, args []string) error {
	ev, err := rt.Evaluator(cmd.Context())
	if err != nil {
		return err
	}
	items, err := ev.GenerateDataset(cmd.Context(), args[0], args[1], evalQuestions)
	if err != nil {
		return err
	}
	cmd.Printf("%d items written to %s\n", len(items), args[1])
	return nil
}

func runEvalRun(cmd *cobra.Command, args []string) error {
	if err := preload(cmd.Context(), evalIngest); err != nil {
		return err
	}
	ev, err := rt.Evaluator(cmd.Context())
	if err != nil {
		return err
	}
	report, err := ev.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if evalJSON {
		return printJSON(cmd, report)
	}
	cmd.Printf("%d/%d evaluated (%d failed), mean overall %.2f, %d hallucinated\n",
		report.Evaluated, report.Total, report.Failed, report.MeanOverall, report.Hallucinated)
	cmd.Printf("results: %s\n", report.Output)
	return nil
}
