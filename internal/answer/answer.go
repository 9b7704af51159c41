// Package answer grounds a chat model's reply in retrieved policy chunks.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"policyrag/internal/domain"
	"policyrag/internal/llm"
	"policyrag/internal/prompts"
)

// Source is a user-facing citation.
type Source struct {
	DocumentName string `json:"document_name"`
	PageNumber   int    `json:"page_number"`
	Source       string `json:"source"`
}

// Detail describes one retrieved chunk for evaluation and debugging.
type Detail struct {
	Rank          int     `json:"rank"`
	DocumentName  string  `json:"document_name"`
	PageNumber    int     `json:"page_number"`
	SemanticScore float64 `json:"semantic_score"`
}

type Result struct {
	Answer           string   `json:"answer"`
	Sources          []Source `json:"sources,omitempty"`
	RetrievalContext string   `json:"retrieval_context,omitempty"`
	Details          []Detail `json:"details,omitempty"`
	// Degraded is set when retrieval failed and the answer is the
	// unavailable notice.
	Degraded bool `json:"degraded,omitempty"`
}

type Generator struct {
	retriever domain.Retriever
	model     llm.ChatModel
	log       *slog.Logger
}

func New(retriever domain.Retriever, model llm.ChatModel, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Generator{retriever: retriever, model: model, log: log}
}

// Answer retrieves context for question and asks the model. The model is
// never called without context: an empty retrieval yields the refusal and a
// failed retrieval yields the unavailable notice.
func (g *Generator) Answer(ctx context.Context, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	results, err := g.retriever.Retrieve(ctx, question)
	if err != nil {
		if errors.Is(err, domain.ErrRetrievalUnavailable) {
			g.log.Warn("Retrieval unavailable, answering without context.", "error", err)
			return Result{Answer: prompts.Unavailable, Degraded: true}, nil
		}
		return Result{}, err
	}
	if len(results) == 0 {
		g.log.Info("No chunks above threshold.", "question", question)
		return Result{Answer: prompts.Refusal}, nil
	}

	res := Result{RetrievalContext: FormatContext(results)}
	for i, r := range results {
		md := r.Document.Metadata
		res.Sources = append(res.Sources, Source{DocumentName: md.FileName, PageNumber: md.PageNumber, Source: md.Source})
		res.Details = append(res.Details, Detail{
			Rank:          i + 1,
			DocumentName:  md.FileName,
			PageNumber:    md.PageNumber,
			SemanticScore: round2(r.Score),
		})
	}

	system, err := prompts.AnswerSystem(res.RetrievalContext)
	if err != nil {
		return Result{}, err
	}
	reply, err := g.model.Chat(ctx, []llm.Message{llm.System(system), llm.User(question)})
	if err != nil {
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}
	res.Answer = reply
	g.log.Info("Answered.", "chunks", len(results))
	return res, nil
}

// FormatContext renders retrieved chunks as numbered context blocks.
func FormatContext(results []domain.RetrievalResult) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		md := r.Document.Metadata
		var b strings.Builder
		fmt.Fprintf(&b, "--- Document %d ---\n", i+1)
		fmt.Fprintf(&b, "Source: %s\n", md.Source)
		fmt.Fprintf(&b, "Document Name: %s\n", md.FileName)
		fmt.Fprintf(&b, "Page Number: %d\n", md.PageNumber)
		fmt.Fprintf(&b, "Semantic Score: %s\n\n", strconv.FormatFloat(round2(r.Score), 'f', -1, 64))
		b.WriteString("Content:\n")
		b.WriteString(r.Document.PageContent)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
