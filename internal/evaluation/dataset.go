// Package evaluation generates question datasets from the PDF collection
// and scores the answer generator against them with an LLM judge.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"

	"policyrag/internal/answer"
	"policyrag/internal/domain"
	"policyrag/internal/ingest"
	"policyrag/internal/llm"
	"policyrag/internal/prompts"
)

// DefaultBlockBudgets are the block counts tried, in order, when building a
// dataset prompt. The smaller budget is the retry for oversized replies.
var DefaultBlockBudgets = []int{15, 10}

// DefaultConcurrency bounds concurrent rows in Run.
const DefaultConcurrency = 4

// Answerer is the part of the answer generator the runner needs.
type Answerer interface {
	Answer(ctx context.Context, question string) (answer.Result, error)
}

// Evaluator owns dataset generation and evaluation runs.
type Evaluator struct {
	extractor   ingest.Extractor
	answerer    Answerer
	model       llm.ChatModel
	budgets     []int
	concurrency int
	seed        int64
	log         *slog.Logger
}

type Option func(*Evaluator)

func WithBlockBudgets(b []int) Option {
	return func(e *Evaluator) {
		if len(b) > 0 {
			e.budgets = b
		}
	}
}

func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSeed makes PDF sampling reproducible. Zero picks a random seed.
func WithSeed(seed int64) Option { return func(e *Evaluator) { e.seed = seed } }

func WithLogger(l *slog.Logger) Option { return func(e *Evaluator) { e.log = l } }

// New builds an Evaluator. The model is used both to write dataset items
// and to judge answers.
func New(extractor ingest.Extractor, answerer Answerer, model llm.ChatModel, opts ...Option) *Evaluator {
	e := &Evaluator{
		extractor:   extractor,
		answerer:    answerer,
		model:       model,
		budgets:     DefaultBlockBudgets,
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.DiscardHandler)
	}
	return e
}

type datasetReply struct {
	Question        string `json:"question"`
	ExpectedAnswer  string `json:"expected_answer"`
	QuestionType    string `json:"question_type"`
	SourceDocuments []struct {
		DocumentName string     `json:"document_name"`
		PageNumber   flexString `json:"page_number"`
	} `json:"source_documents"`
}

// GenerateDataset samples up to n PDFs under root, asks the model for one
// question per PDF and writes the items to out. PDFs that fail at every
// budget are skipped.
func (e *Evaluator) GenerateDataset(ctx context.Context, root, out string, n int) ([]Item, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: num_questions must be positive", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(out) == "" {
		return nil, fmt.Errorf("%w: output file is required", domain.ErrInvalidInput)
	}
	pdfs, err := ingest.FindPDFs(root)
	if err != nil {
		return nil, err
	}
	if len(pdfs) == 0 {
		return nil, fmt.Errorf("%w: no PDF files under %s", domain.ErrNotFound, root)
	}

	items := make([]Item, 0, min(n, len(pdfs)))
	for _, pdf := range e.sample(pdfs, n) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logCtx := e.log.With("file", pdf)
		item, err := e.generateItem(ctx, logCtx, pdf)
		if err != nil {
			logCtx.Warn("Skipping PDF.", "error", err)
			continue
		}
		items = append(items, item)
	}

	if err := WriteDataset(out, items); err != nil {
		return nil, err
	}
	e.log.Info("Evaluation dataset written.", "path", out, "items", len(items))
	return items, nil
}

func (e *Evaluator) sample(pdfs []string, n int) []string {
	seed := uint64(e.seed)
	if e.seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	picked := append([]string(nil), pdfs...)
	rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked[:min(n, len(picked))]
}

func (e *Evaluator) generateItem(ctx context.Context, logCtx *slog.Logger, pdf string) (Item, error) {
	blocks, err := e.extractor.Extract(ctx, pdf)
	if err != nil {
		return Item{}, err
	}
	if len(blocks) == 0 {
		return Item{}, errors.New("no content extracted")
	}

	var lastErr error
	for _, budget := range e.budgets {
		item, err := e.tryBudget(ctx, blocks[:min(budget, len(blocks))])
		if err == nil {
			item.PDFFile = filepath.Base(pdf)
			return item, nil
		}
		if ctx.Err() != nil {
			return Item{}, ctx.Err()
		}
		logCtx.Warn("Dataset item failed.", "blocks", budget, "error", err)
		lastErr = err
	}
	return Item{}, lastErr
}

func (e *Evaluator) tryBudget(ctx context.Context, blocks []domain.Block) (Item, error) {
	prompt, err := prompts.Dataset(BuildContent(blocks))
	if err != nil {
		return Item{}, err
	}
	reply, err := e.model.Chat(ctx, []llm.Message{llm.User(prompt)})
	if err != nil {
		return Item{}, err
	}
	var parsed datasetReply
	if err := ExtractJSON(reply, &parsed); err != nil {
		return Item{}, err
	}
	if strings.TrimSpace(parsed.Question) == "" {
		return Item{}, errors.New("model returned no question")
	}
	item := Item{
		Question:       strings.TrimSpace(parsed.Question),
		ExpectedAnswer: strings.TrimSpace(parsed.ExpectedAnswer),
		QuestionType:   strings.TrimSpace(parsed.QuestionType),
	}
	if len(parsed.SourceDocuments) > 0 {
		item.DocumentName = parsed.SourceDocuments[0].DocumentName
		item.PageNumber = string(parsed.SourceDocuments[0].PageNumber)
	}
	return item, nil
}
