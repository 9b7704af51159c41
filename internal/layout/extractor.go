// Package layout turns a PDF into ordered paragraph and table blocks.
package layout

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"policyrag/internal/domain"
)

// TableOrderY is the vertical position assigned to every table block.
// It exceeds any real page coordinate, so tables always trail the
// paragraphs of their page when blocks are sorted by (page, y).
const TableOrderY = 1e6

// Cell is one table cell.
type Cell struct {
	Text   string
	Header bool
}

// Table is a detected table on a 1-based page.
type Table struct {
	Page int
	Rows [][]Cell
}

// TextBlock is a raw paragraph block. Y is measured from the top of the page.
type TextBlock struct {
	Page int
	Text string
	Y    float64
}

// TableFinder is the table-detection pass over a whole document.
type TableFinder interface {
	FindTables(ctx context.Context, path string) ([]Table, error)
}

// BlockReader is the text-block pass over a whole document.
type BlockReader interface {
	ReadBlocks(ctx context.Context, path string) ([]TextBlock, error)
}

// Preflighter rejects files that are not readable PDFs before the passes
// run and reports how many pages they have.
type Preflighter interface {
	Check(path string) (pages int, err error)
}

// Extractor combines the two passes into an ordered block sequence.
type Extractor struct {
	tables    TableFinder
	text      BlockReader
	preflight Preflighter
	log       *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPreflight runs p before extraction.
func WithPreflight(p Preflighter) Option {
	return func(e *Extractor) { e.preflight = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

// New returns an Extractor over the given passes.
func New(tables TableFinder, text BlockReader, opts ...Option) *Extractor {
	e := &Extractor{tables: tables, text: text, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the blocks of the PDF at path sorted by (page, y).
// Any failure is reported as a *domain.LayoutExtractionError.
func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.Block, error) {
	fail := func(err error) error { return &domain.LayoutExtractionError{Path: path, Err: err} }

	pages := -1
	if e.preflight != nil {
		n, err := e.preflight.Check(path)
		if err != nil {
			return nil, fail(err)
		}
		if n == 0 {
			e.log.Debug("PDF has no pages.", "file", filepath.Base(path))
			return nil, nil
		}
		pages = n
	}
	tables, err := e.tables.FindTables(ctx, path)
	if err != nil {
		return nil, fail(err)
	}
	texts, err := e.text.ReadBlocks(ctx, path)
	if err != nil {
		return nil, fail(err)
	}

	prov := ProvenanceFor(path)
	fingerprints := make(map[int][]string)
	for _, t := range tables {
		fingerprints[t.Page] = append(fingerprints[t.Page], t.Fingerprints()...)
	}

	blocks := make([]domain.Block, 0, len(texts)+len(tables))
	dropped := 0
	for _, tb := range texts {
		content := strings.TrimSpace(tb.Text)
		if content == "" {
			continue
		}
		if coveredByTable(Fingerprint(content), fingerprints[tb.Page]) {
			dropped++
			continue
		}
		blocks = append(blocks, domain.Block{
			Type:       domain.BlockParagraph,
			Content:    content,
			PageNumber: tb.Page,
			Y:          math.Min(tb.Y, TableOrderY-1),
			Provenance: prov,
		})
	}
	for _, t := range tables {
		if len(t.Rows) == 0 {
			continue
		}
		blocks = append(blocks, domain.Block{
			Type:       domain.BlockTable,
			Content:    t.HTML(),
			PageNumber: t.Page,
			Y:          TableOrderY,
			Provenance: prov,
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].PageNumber != blocks[j].PageNumber {
			return blocks[i].PageNumber < blocks[j].PageNumber
		}
		return blocks[i].Y < blocks[j].Y
	})

	e.log.Debug("Extracted layout.", "file", prov.FileName, "pages", pages, "blocks", len(blocks), "tables", len(tables), "deduplicated", dropped)
	return blocks, nil
}

// ProvenanceFor derives provenance from a .../plan/product/file.pdf path.
func ProvenanceFor(path string) domain.Provenance {
	dir := filepath.Dir(path)
	return domain.Provenance{
		PlanName:    dirName(filepath.Dir(dir)),
		ProductName: dirName(dir),
		FileName:    filepath.Base(path),
		Source:      path,
	}
}

func dirName(dir string) string {
	name := filepath.Base(dir)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func coveredByTable(paragraph string, fingerprints []string) bool {
	if paragraph == "" {
		return false
	}
	for _, fp := range fingerprints {
		if strings.Contains(fp, paragraph) {
			return true
		}
	}
	return false
}
