// Package chunker converts extracted blocks into token-bounded documents.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"policyrag/internal/domain"
)

const (
	DefaultChunkTokens   = 1000
	DefaultOverlapTokens = 200
	DefaultTailTokens    = 100
)

// pageJoin separates block contents in the page buffer and the carried
// tail from the first chunk of the next page.
const pageJoin = "\n\n"

// Builder turns a file's blocks into text and table documents.
type Builder struct {
	tok      Tokenizer
	size     int
	overlap  int
	tail     int
	splitter *Splitter
}

// Option configures a Builder.
type Option func(*Builder)

// WithChunkTokens sets the maximum chunk size in tokens.
func WithChunkTokens(n int) Option { return func(b *Builder) { b.size = n } }

// WithOverlapTokens sets the overlap between consecutive chunks of a page.
func WithOverlapTokens(n int) Option { return func(b *Builder) { b.overlap = n } }

// WithTailTokens sets how many trailing tokens carry over to the next page.
func WithTailTokens(n int) Option { return func(b *Builder) { b.tail = n } }

// NewBuilder returns a Builder measuring sizes with tok.
func NewBuilder(tok Tokenizer, opts ...Option) (*Builder, error) {
	b := &Builder{
		tok:     tok,
		size:    DefaultChunkTokens,
		overlap: DefaultOverlapTokens,
		tail:    DefaultTailTokens,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.size <= 0 || b.overlap < 0 || b.overlap >= b.size || b.tail < 0 || b.tail >= b.size {
		return nil, fmt.Errorf("%w: chunk=%d overlap=%d tail=%d", domain.ErrInvalidInput, b.size, b.overlap, b.tail)
	}
	b.splitter = NewSplitter(tok, b.size, b.overlap)
	return b, nil
}

type page struct {
	number int
	blocks []domain.Block
}

// carry is the state threaded from one page to the next.
type carry struct {
	tail string
}

// Build returns the documents for blocks, pages in ascending order. Table
// documents of a page precede its text documents. Identifiers are left empty.
func (b *Builder) Build(blocks []domain.Block) ([]domain.Document, error) {
	pages, err := groupPages(blocks)
	if err != nil {
		return nil, err
	}
	var docs []domain.Document
	var c carry
	for _, p := range pages {
		out, next, err := b.foldPage(c, p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, out...)
		c = next
	}
	return docs, nil
}

func (b *Builder) foldPage(c carry, p page) ([]domain.Document, carry, error) {
	meta := p.blocks[0].Provenance
	contents := make([]string, len(p.blocks))
	for i, blk := range p.blocks {
		contents[i] = blk.Content
	}
	buf := strings.Join(contents, pageJoin)

	var docs []domain.Document
	for _, blk := range p.blocks {
		if blk.Type != domain.BlockTable {
			continue
		}
		flat, err := FlattenTable(blk.Content)
		if err != nil {
			return nil, c, &domain.ChunkingError{Page: p.number, Reason: "table markup: " + err.Error()}
		}
		if flat = Normalize(flat); flat != "" {
			docs = append(docs, newDocument(flat, blk.Provenance, p.number, domain.ChunkTable))
		}
		buf = strings.ReplaceAll(buf, blk.Content, "")
	}

	var chunks []string
	if text := Normalize(buf); text != "" {
		chunks = b.splitter.Split(text)
	}
	for _, chunk := range b.stitch(c.tail, chunks) {
		docs = append(docs, newDocument(chunk, meta, p.number, domain.ChunkText))
	}

	var next carry
	if len(chunks) > 0 {
		next.tail = b.lastTokens(chunks[len(chunks)-1])
	}
	return docs, next, nil
}

// stitch prefixes tail to the first chunk. When that would exceed the chunk
// size, the first chunk is split again with room reserved for the tail.
func (b *Builder) stitch(tail string, chunks []string) []string {
	if tail == "" || len(chunks) == 0 {
		return chunks
	}
	prefix := tail + pageJoin
	first := prefix + chunks[0]
	if b.count(first) <= b.size {
		return append([]string{first}, chunks[1:]...)
	}
	for budget := b.size - b.count(prefix); budget > 0; {
		overlap := b.overlap
		if overlap >= budget {
			overlap = budget / 5
		}
		pieces := NewSplitter(b.tok, budget, overlap).Split(chunks[0])
		if len(pieces) == 0 {
			break
		}
		stitched := prefix + pieces[0]
		over := b.count(stitched) - b.size
		if over <= 0 {
			out := append([]string{stitched}, pieces[1:]...)
			return append(out, chunks[1:]...)
		}
		budget -= over
	}
	return append([]string{first}, chunks[1:]...)
}

func (b *Builder) count(s string) int { return len(b.tok.Encode(s)) }

func (b *Builder) lastTokens(s string) string {
	if b.tail == 0 {
		return ""
	}
	tokens := b.tok.Encode(s)
	if len(tokens) <= b.tail {
		return s
	}
	return strings.TrimSpace(strings.ToValidUTF8(b.tok.Decode(tokens[len(tokens)-b.tail:]), ""))
}

func newDocument(content string, prov domain.Provenance, pageNumber int, typ domain.ChunkType) domain.Document {
	return domain.Document{
		PageContent: content,
		Metadata: domain.Metadata{
			Provenance: prov,
			PageNumber: pageNumber,
			Type:       typ,
		},
	}
}

func groupPages(blocks []domain.Block) ([]page, error) {
	byNumber := make(map[int]*page)
	for _, blk := range blocks {
		if err := validateBlock(blk); err != nil {
			return nil, err
		}
		p, ok := byNumber[blk.PageNumber]
		if !ok {
			p = &page{number: blk.PageNumber}
			byNumber[blk.PageNumber] = p
		}
		p.blocks = append(p.blocks, blk)
	}
	pages := make([]page, 0, len(byNumber))
	for _, p := range byNumber {
		pages = append(pages, *p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })
	return pages, nil
}

func validateBlock(blk domain.Block) error {
	switch {
	case blk.PageNumber < 1:
		return &domain.ChunkingError{Page: blk.PageNumber, Reason: "page number must be 1-based"}
	case blk.Type != domain.BlockParagraph && blk.Type != domain.BlockTable:
		return &domain.ChunkingError{Page: blk.PageNumber, Reason: fmt.Sprintf("unknown block type %q", blk.Type)}
	case blk.FileName == "":
		return &domain.ChunkingError{Page: blk.PageNumber, Reason: "missing file_name"}
	case blk.Source == "":
		return &domain.ChunkingError{Page: blk.PageNumber, Reason: "missing source"}
	}
	return nil
}
