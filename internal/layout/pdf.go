package layout

import (
	"context"
	"fmt"
	"strings"

	"github.com/tsawler/tabula/core"
	"github.com/tsawler/tabula/graphicsstate"
	tlayout "github.com/tsawler/tabula/layout"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/pages"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/tables"
	"github.com/tsawler/tabula/text"
)

// PDFOptions tunes table detection.
type PDFOptions struct {
	MinRows       int
	MinCols       int
	MinConfidence float64
	// RequireRulings keeps only tables drawn with visible grid lines.
	RequireRulings bool
}

// PDF reads paragraph blocks and tables with tabula.
type PDF struct {
	opts PDFOptions
}

// NewPDF returns a tabula-backed implementation of both extraction passes.
func NewPDF(opts PDFOptions) *PDF {
	return &PDF{opts: opts}
}

type pageVisitor func(index int, page *pages.Page, frags []text.TextFragment, width, height float64) error

func (p *PDF) walk(ctx context.Context, path string, visit pageVisitor) error {
	r, err := reader.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	n, err := r.PageCount()
	if err != nil {
		return fmt.Errorf("page count: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.GetPage(i)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		frags, err := r.ExtractTextFragments(page)
		if err != nil {
			return fmt.Errorf("page %d text: %w", i+1, err)
		}
		width, _ := page.Width()
		height, _ := page.Height()
		if err := visit(i, page, frags, width, height); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	return nil
}

// ReadBlocks returns one TextBlock per detected layout block.
func (p *PDF) ReadBlocks(ctx context.Context, path string) ([]TextBlock, error) {
	detector := tlayout.NewBlockDetector()
	var out []TextBlock
	err := p.walk(ctx, path, func(i int, _ *pages.Page, frags []text.TextFragment, width, height float64) error {
		res := detector.Detect(frags, width, height)
		if res == nil {
			return nil
		}
		for j := range res.Blocks {
			b := &res.Blocks[j]
			out = append(out, TextBlock{
				Page: i + 1,
				Text: b.GetText(),
				Y:    height - (b.BBox.Y + b.BBox.Height),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindTables runs geometric table detection on every page, using ruling
// lines from the page content streams.
func (p *PDF) FindTables(ctx context.Context, path string) ([]Table, error) {
	cfg := tables.DefaultConfig()
	if p.opts.MinRows > 0 {
		cfg.MinRows = p.opts.MinRows
	}
	if p.opts.MinCols > 0 {
		cfg.MinCols = p.opts.MinCols
	}
	if p.opts.MinConfidence > 0 {
		cfg.MinConfidence = p.opts.MinConfidence
	}
	detector := tables.NewGeometricDetector()
	if err := detector.Configure(cfg); err != nil {
		return nil, err
	}

	var out []Table
	err := p.walk(ctx, path, func(i int, page *pages.Page, frags []text.TextFragment, width, height float64) error {
		mp := model.NewPage(width, height)
		mp.Number = i + 1
		for _, f := range frags {
			mp.RawText = append(mp.RawText, model.TextFragment{
				Text:     f.Text,
				BBox:     model.NewBBox(f.X, f.Y, f.Width, f.Height),
				FontSize: f.FontSize,
				FontName: f.FontName,
			})
		}
		mp.RawLines = rulings(page)

		found, err := detector.Detect(mp)
		if err != nil {
			return err
		}
		for _, t := range found {
			if t == nil || (p.opts.RequireRulings && !t.HasGrid) {
				continue
			}
			out = append(out, convertTable(i+1, t))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rulings returns the lines and rectangles drawn by the page. Streams that
// fail to decode are skipped; table detection then falls back to alignment.
func rulings(page *pages.Page) []model.Line {
	contents, err := page.Contents()
	if err != nil {
		return nil
	}
	ge := graphicsstate.NewGraphicsExtractor()
	for _, obj := range contents {
		stream, ok := obj.(*core.Stream)
		if !ok {
			continue
		}
		data, err := stream.Decode()
		if err != nil {
			continue
		}
		_ = ge.ExtractFromBytes(data)
	}
	return append(ge.ToModelLines(), ge.ToModelRectangles()...)
}

func convertTable(page int, t *model.Table) Table {
	out := Table{Page: page}
	for _, row := range t.Rows {
		cells := make([]Cell, 0, len(row))
		empty := true
		for _, c := range row {
			txt := strings.TrimSpace(c.Text)
			if txt != "" {
				empty = false
			}
			cells = append(cells, Cell{Text: txt, Header: c.IsHeader})
		}
		if !empty {
			out.Rows = append(out.Rows, cells)
		}
	}
	return out
}
