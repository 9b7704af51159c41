package evaluation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

var (
	datasetColumns = []string{"question", "expected_answer", "question_type", "document_name", "page_number", "pdf_file"}
	resultColumns  = []string{
		"question", "expected_answer", "llm_answer", "retrieval_context", "pdf_file", "page_number",
		"answer_correctness", "groundedness_score", "hallucination", "citation_accuracy", "overall_score", "explanation",
	}
)

// Item is one row of an evaluation dataset.
type Item struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer"`
	QuestionType   string `json:"question_type"`
	DocumentName   string `json:"document_name"`
	PageNumber     string `json:"page_number"`
	PDFFile        string `json:"pdf_file"`
}

func (it Item) row() []any {
	return []any{it.Question, it.ExpectedAnswer, it.QuestionType, it.DocumentName, it.PageNumber, it.PDFFile}
}

// Row is one evaluated question.
type Row struct {
	Question          string  `json:"question"`
	ExpectedAnswer    string  `json:"expected_answer"`
	LLMAnswer         string  `json:"llm_answer"`
	RetrievalContext  string  `json:"retrieval_context"`
	PDFFile           string  `json:"pdf_file"`
	PageNumber        string  `json:"page_number"`
	AnswerCorrectness float64 `json:"answer_correctness"`
	Groundedness      float64 `json:"groundedness_score"`
	Hallucination     bool    `json:"hallucination"`
	CitationAccuracy  float64 `json:"citation_accuracy"`
	OverallScore      float64 `json:"overall_score"`
	Explanation       string  `json:"explanation"`
}

func (r Row) row() []any {
	return []any{
		r.Question, r.ExpectedAnswer, r.LLMAnswer, r.RetrievalContext, r.PDFFile, r.PageNumber,
		r.AnswerCorrectness, r.Groundedness, r.Hallucination, r.CitationAccuracy, r.OverallScore, r.Explanation,
	}
}

// ResultsPath returns <stem>_results<ext> next to the dataset.
func ResultsPath(dataset string) string {
	ext := filepath.Ext(dataset)
	return strings.TrimSuffix(dataset, ext) + "_results" + ext
}

func writeSheet(path string, header []string, rows [][]any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f := excelize.NewFile()
	defer f.Close()

	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &hdr); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &r); err != nil {
			return err
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// WriteDataset writes items to an .xlsx file.
func WriteDataset(path string, items []Item) error {
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = it.row()
	}
	return writeSheet(path, datasetColumns, rows)
}

func writeResults(path string, results []Row) error {
	rows := make([][]any, len(results))
	for i, r := range results {
		rows[i] = r.row()
	}
	return writeSheet(path, resultColumns, rows)
}

// ReadDataset reads the first sheet of an .xlsx dataset. Columns are
// matched by header name; question is required.
func ReadDataset(path string) ([]Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	if _, ok := idx["question"]; !ok {
		return nil, fmt.Errorf("%s: missing question column", path)
	}
	get := func(r []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(r) {
			return ""
		}
		return strings.TrimSpace(r[i])
	}
	var items []Item
	for _, r := range rows[1:] {
		it := Item{
			Question:       get(r, "question"),
			ExpectedAnswer: get(r, "expected_answer"),
			QuestionType:   get(r, "question_type"),
			DocumentName:   get(r, "document_name"),
			PageNumber:     get(r, "page_number"),
			PDFFile:        get(r, "pdf_file"),
		}
		if it.Question == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}
