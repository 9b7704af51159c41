package evaluation

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"policyrag/internal/llm"
	"policyrag/internal/prompts"
)

// RunReport summarizes an evaluation run.
type RunReport struct {
	Dataset      string  `json:"dataset"`
	Output       string  `json:"output"`
	Total        int     `json:"total"`
	Evaluated    int     `json:"evaluated"`
	Failed       int     `json:"failed"`
	MeanOverall  float64 `json:"mean_overall_score"`
	Hallucinated int     `json:"hallucinated"`
}

type verdict struct {
	AnswerCorrectness float64  `json:"answer_correctness"`
	Groundedness      float64  `json:"groundedness_score"`
	Hallucination     flexBool `json:"hallucination"`
	CitationAccuracy  float64  `json:"citation_accuracy"`
	OverallScore      float64  `json:"overall_score"`
	Explanation       string   `json:"explanation"`
}

// Run answers and judges every question in the dataset and writes the
// scored rows next to it. Rows keep dataset order; a row whose answer or
// verdict fails is logged and left out.
func (e *Evaluator) Run(ctx context.Context, dataset string) (RunReport, error) {
	items, err := ReadDataset(dataset)
	if err != nil {
		return RunReport{}, err
	}

	slots := make([]*Row, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, it := range items {
		g.Go(func() error {
			row, err := e.evaluate(gctx, it)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.log.Warn("Evaluation row failed.", "row", i+2, "question", it.Question, "error", err)
				return nil
			}
			slots[i] = &row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RunReport{}, err
	}

	report := RunReport{Dataset: dataset, Output: ResultsPath(dataset), Total: len(items)}
	rows := make([]Row, 0, len(items))
	var sum float64
	for _, r := range slots {
		if r == nil {
			report.Failed++
			continue
		}
		rows = append(rows, *r)
		sum += r.OverallScore
		if r.Hallucination {
			report.Hallucinated++
		}
	}
	report.Evaluated = len(rows)
	if len(rows) > 0 {
		report.MeanOverall = sum / float64(len(rows))
	}

	if err := writeResults(report.Output, rows); err != nil {
		return RunReport{}, err
	}
	e.log.Info("Evaluation complete.",
		slog.String("output", report.Output),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("failed", report.Failed),
		slog.Float64("mean_overall", report.MeanOverall))
	return report, nil
}

func (e *Evaluator) evaluate(ctx context.Context, it Item) (Row, error) {
	res, err := e.answerer.Answer(ctx, it.Question)
	if err != nil {
		return Row{}, fmt.Errorf("answer: %w", err)
	}
	expected := fmt.Sprintf("%s \n- Document Name: %s \n- Page Number(s): %s", it.ExpectedAnswer, it.PDFFile, it.PageNumber)

	prompt, err := prompts.Judge(prompts.JudgeInput{
		Question:         it.Question,
		ExpectedAnswer:   expected,
		GeneratedAnswer:  res.Answer,
		RetrievedContext: res.RetrievalContext,
	})
	if err != nil {
		return Row{}, err
	}
	reply, err := e.model.Chat(ctx, []llm.Message{llm.User(prompt)})
	if err != nil {
		return Row{}, fmt.Errorf("judge: %w", err)
	}
	var v verdict
	if err := ExtractJSON(reply, &v); err != nil {
		return Row{}, fmt.Errorf("judge: %w", err)
	}
	return Row{
		Question:          it.Question,
		ExpectedAnswer:    expected,
		LLMAnswer:         res.Answer,
		RetrievalContext:  res.RetrievalContext,
		PDFFile:           it.PDFFile,
		PageNumber:        it.PageNumber,
		AnswerCorrectness: v.AnswerCorrectness,
		Groundedness:      v.Groundedness,
		Hallucination:     bool(v.Hallucination),
		CitationAccuracy:  v.CitationAccuracy,
		OverallScore:      v.OverallScore,
		Explanation:       v.Explanation,
	}, nil
}
