package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"policyrag/internal/answer"
	"policyrag/internal/domain"
	"policyrag/internal/llm"
)

type fakeExtractor struct {
	blocks map[string][]domain.Block
	err    error
}

func (f fakeExtractor) Extract(_ context.Context, path string) ([]domain.Block, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.blocks[filepath.Base(path)], nil
}

// funcModel is safe for concurrent use; reply decides from the prompt.
type funcModel struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (m *funcModel) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, msgs[len(msgs)-1].Content)
	m.mu.Unlock()
	return m.reply(msgs[len(msgs)-1].Content)
}

type fakeAnswerer struct {
	fail map[string]bool
}

func (f fakeAnswerer) Answer(_ context.Context, q string) (answer.Result, error) {
	if f.fail[q] {
		return answer.Result{}, errors.New("boom")
	}
	return answer.Result{Answer: "answer to " + q, RetrievalContext: "ctx for " + q}, nil
}

func paragraphs(n int) []domain.Block {
	blocks := make([]domain.Block, n)
	for i := range blocks {
		blocks[i] = domain.Block{Type: domain.BlockParagraph, Content: "block " + string(rune('A'+i)), PageNumber: i/5 + 1}
	}
	return blocks
}

func touchPDFs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4"), 0o644))
	}
}

const itemReply = "```json\n{\"question\": \"What is the entry age of Jeevan Plan?\", \"expected_answer\": \"18 years\", \"question_type\": \"direct factual\", \"source_documents\": [{\"document_name\": \"Jeevan Plan\", \"page_number\": 2}]}\n```"

func TestGenerateDatasetWritesOneItemPerPDF(t *testing.T) {
	dir := t.TempDir()
	touchPDFs(t, dir, "a.pdf", "b.pdf", "notes.txt")
	model := &funcModel{reply: func(string) (string, error) { return itemReply, nil }}
	ev := New(fakeExtractor{blocks: map[string][]domain.Block{"a.pdf": paragraphs(3), "b.pdf": paragraphs(3)}}, nil, model, WithSeed(7))

	out := filepath.Join(dir, "out", "dataset.xlsx")
	items, err := ev.GenerateDataset(context.Background(), dir, out, 30)
	require.NoError(t, err)
	require.Len(t, items, 2)

	files := []string{items[0].PDFFile, items[1].PDFFile}
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, files)
	assert.Equal(t, "Jeevan Plan", items[0].DocumentName)
	assert.Equal(t, "2", items[0].PageNumber)

	read, err := ReadDataset(out)
	require.NoError(t, err)
	assert.Equal(t, items, read)
}

func TestGenerateDatasetRetriesWithSmallerBudget(t *testing.T) {
	dir := t.TempDir()
	touchPDFs(t, dir, "a.pdf")
	calls := 0
	model := &funcModel{reply: func(p string) (string, error) {
		calls++
		if calls == 1 {
			return "sorry, too long", nil
		}
		return itemReply, nil
	}}
	ev := New(fakeExtractor{blocks: map[string][]domain.Block{"a.pdf": paragraphs(20)}}, nil, model, WithSeed(1))

	items, err := ev.GenerateDataset(context.Background(), dir, filepath.Join(dir, "d.xlsx"), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[0], "block O")
	assert.NotContains(t, model.prompts[1], "block K")
	assert.Contains(t, model.prompts[1], "block J")
}

func TestGenerateDatasetSkipsFailingPDFs(t *testing.T) {
	dir := t.TempDir()
	touchPDFs(t, dir, "a.pdf")
	model := &funcModel{reply: func(string) (string, error) { return "", errors.New("model down") }}
	ev := New(fakeExtractor{blocks: map[string][]domain.Block{"a.pdf": paragraphs(2)}}, nil, model)

	out := filepath.Join(dir, "d.xlsx")
	items, err := ev.GenerateDataset(context.Background(), dir, out, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.FileExists(t, out)
}

func TestGenerateDatasetValidatesInput(t *testing.T) {
	ev := New(fakeExtractor{}, nil, &funcModel{})

	_, err := ev.GenerateDataset(context.Background(), t.TempDir(), "d.xlsx", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ev.GenerateDataset(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "d.xlsx"), 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSampleIsReproducibleWithSeed(t *testing.T) {
	pdfs := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}
	a := New(nil, nil, nil, WithSeed(42)).sample(pdfs, 3)
	b := New(nil, nil, nil, WithSeed(42)).sample(pdfs, 3)
	assert.Equal(t, a, b)
	assert.Len(t, a, 3)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}, pdfs)
}

func TestRunJudgesRowsInOrder(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "dataset.xlsx")
	items := []Item{
		{Question: "q1", ExpectedAnswer: "e1", PDFFile: "a.pdf", PageNumber: "1"},
		{Question: "q2", ExpectedAnswer: "e2", PDFFile: "b.pdf", PageNumber: "4"},
		{Question: "q3", ExpectedAnswer: "e3", PDFFile: "c.pdf", PageNumber: "2"},
		{Question: "q4", ExpectedAnswer: "e4", PDFFile: "d.pdf", PageNumber: "9"},
	}
	require.NoError(t, WriteDataset(dataset, items))

	model := &funcModel{reply: func(p string) (string, error) {
		if strings.Contains(p, "answer to q3") {
			return `{"answer_correctness": 0.2, "groundedness_score": 0.5, "hallucination": "yes", "citation_accuracy": 0, "overall_score": 0.25, "explanation": "wrong"}`, nil
		}
		return `{"answer_correctness": 1, "groundedness_score": 1, "hallucination": false, "citation_accuracy": 1, "overall_score": 1, "explanation": "good"}`, nil
	}}
	ev := New(nil, fakeAnswerer{fail: map[string]bool{"q2": true}}, model, WithConcurrency(3))

	report, err := ev.Run(context.Background(), dataset)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Hallucinated)
	assert.InDelta(t, 0.75, report.MeanOverall, 1e-9)
	assert.Equal(t, filepath.Join(dir, "dataset_results.xlsx"), report.Output)

	rows := readResultRows(t, report.Output)
	require.Len(t, rows, 4)
	assert.Equal(t, resultColumns, rows[0])
	assert.Equal(t, "q1", rows[1][0])
	assert.Equal(t, "q3", rows[2][0])
	assert.Equal(t, "q4", rows[3][0])
	assert.Equal(t, "e3 \n- Document Name: c.pdf \n- Page Number(s): 2", rows[2][1])
	assert.Equal(t, "answer to q3", rows[2][2])
	assert.Equal(t, "wrong", rows[2][11])

	for _, p := range model.prompts {
		assert.Contains(t, p, "Retrieved context")
	}
}

func TestRunMissingDataset(t *testing.T) {
	ev := New(nil, fakeAnswerer{}, &funcModel{})
	_, err := ev.Run(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}

func readResultRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	return rows
}
