// Package ingest walks a folder of policy PDFs and writes their chunks to
// the vector store, one file at a time.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"policyrag/internal/checksum"
	"policyrag/internal/domain"
	"policyrag/internal/metrics"
)

// Extractor turns one PDF into ordered blocks.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]domain.Block, error)
}

// Chunker turns one file's blocks into chunks.
type Chunker interface {
	Build(blocks []domain.Block) ([]domain.Document, error)
}

type Status string

const (
	StatusIngested Status = "ingested"
	StatusSkipped  Status = "skipped"
	StatusEmpty    Status = "empty"
	StatusFailed   Status = "failed"
)

// FileResult is the outcome for one file.
type FileResult struct {
	Path       string `json:"path"`
	Status     Status `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// Report aggregates a batch.
type Report struct {
	Files    []FileResult `json:"files"`
	Ingested int          `json:"ingested"`
	Skipped  int          `json:"skipped"`
	Empty    int          `json:"empty"`
	Failed   int          `json:"failed"`
	Chunks   int          `json:"chunks"`
}

func (r *Report) add(res FileResult) {
	r.Files = append(r.Files, res)
	switch res.Status {
	case StatusIngested:
		r.Ingested++
		r.Chunks += res.Chunks
	case StatusSkipped:
		r.Skipped++
	case StatusEmpty:
		r.Empty++
	case StatusFailed:
		r.Failed++
	}
}

type Service struct {
	extractor        Extractor
	chunker          Chunker
	store            domain.VectorStore
	ledger           domain.Ledger
	summarizer       domain.Summarizer
	summarySentences int
	extractTimeout   time.Duration
	log              *slog.Logger
	metrics          *metrics.Metrics
	now              func() time.Time
	newID            func() string

	// one file at a time, also across callers (CLI, HTTP, watcher)
	mu sync.Mutex
}

type Option func(*Service)

func WithLedger(l domain.Ledger) Option { return func(s *Service) { s.ledger = l } }

func WithSummarizer(sum domain.Summarizer, maxSentences int) Option {
	return func(s *Service) {
		s.summarizer = sum
		s.summarySentences = maxSentences
	}
}

// WithExtractTimeout bounds extraction of a single file.
func WithExtractTimeout(d time.Duration) Option { return func(s *Service) { s.extractTimeout = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func New(extractor Extractor, chunker Chunker, store domain.VectorStore, opts ...Option) *Service {
	s := &Service{
		extractor: extractor,
		chunker:   chunker,
		store:     store,
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestFolder ingests every *.pdf under root in lexical path order. A root
// that is itself a PDF is ingested alone. Per-file failures are recorded in
// the report; only context cancellation or an unreadable root stops the batch.
func (s *Service) IngestFolder(ctx context.Context, root string, force bool) (Report, error) {
	var report Report
	paths, err := FindPDFs(root)
	if err != nil {
		return report, err
	}
	if len(paths) == 0 {
		return report, fmt.Errorf("%w: no PDF files under %s", domain.ErrNotFound, root)
	}
	s.log.Info("Ingesting folder.", "root", root, "files", len(paths), "force", force)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.add(s.IngestFile(ctx, p, force))
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	s.log.Info("Ingestion finished.", "ingested", report.Ingested, "skipped", report.Skipped,
		"empty", report.Empty, "failed", report.Failed, "chunks", report.Chunks)
	return report, nil
}

// IngestFile runs the whole pipeline for one PDF.
func (s *Service) IngestFile(ctx context.Context, path string, force bool) FileResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	logCtx := s.log.With("file", path)
	res := s.ingest(ctx, logCtx, path, force)
	if res.Err != nil {
		res.Error = res.Err.Error()
		logCtx.Error("Failed to ingest file.", "error", res.Err)
	}
	s.metrics.FileProcessed(string(res.Status))
	return res
}

func (s *Service) ingest(ctx context.Context, logCtx *slog.Logger, path string, force bool) FileResult {
	res := FileResult{Path: path, Status: StatusFailed}

	sum, err := checksum.File(path)
	if err != nil {
		res.Err = fmt.Errorf("checksum: %w", err)
		return res
	}
	var previous string
	if s.ledger != nil {
		rec, found, err := s.ledger.Lookup(ctx, sum)
		if err != nil {
			res.Err = fmt.Errorf("ledger lookup: %w", err)
			return res
		}
		if found && !force {
			logCtx.Info("Skipping already ingested file.", "document_id", rec.DocumentID, "ingested_at", rec.IngestedAt)
			res.Status = StatusSkipped
			res.DocumentID = rec.DocumentID
			res.Chunks = rec.Chunks
			return res
		}
		if found {
			previous = rec.DocumentID
		}
	}

	extractCtx := ctx
	if s.extractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, s.extractTimeout)
		defer cancel()
	}
	blocks, err := s.extractor.Extract(extractCtx, path)
	if err != nil {
		res.Err = err
		return res
	}
	docs, err := s.chunker.Build(blocks)
	if err != nil {
		res.Err = err
		return res
	}

	docID := s.newID()
	at := s.now().UTC()
	stamp := at.Format(time.RFC3339)
	counts := map[domain.ChunkType]int{}
	for i := range docs {
		docs[i].Metadata.DocumentID = docID
		docs[i].Metadata.ChunkID = s.newID()
		docs[i].Metadata.Checksum = sum
		docs[i].Metadata.IngestedAt = stamp
		counts[docs[i].Metadata.Type]++
	}

	res.DocumentID = docID
	if len(docs) == 0 {
		logCtx.Warn("No content extracted.", "blocks", len(blocks))
		res.Status = StatusEmpty
	} else {
		if err := s.store.AddDocuments(ctx, docs); err != nil {
			res.Err = fmt.Errorf("write chunks: %w", err)
			return res
		}
		for typ, n := range counts {
			s.metrics.ChunksWritten(string(typ), n)
		}
		res.Status = StatusIngested
		res.Chunks = len(docs)
	}
	if previous != "" {
		// Old chunks go only after the new ones are stored.
		if err := s.store.DeleteDocument(ctx, previous); err != nil {
			logCtx.Warn("Failed to remove previous chunks.", "previous_document_id", previous, "error", err)
		} else {
			logCtx.Info("Replaced previous ingestion.", "previous_document_id", previous)
		}
	}

	rec := domain.IngestionRecord{
		Checksum:   sum,
		DocumentID: docID,
		FileName:   filepath.Base(path),
		Source:     path,
		Chunks:     len(docs),
		Summary:    s.summarize(logCtx, docs),
		IngestedAt: at,
	}
	if s.ledger != nil {
		if err := s.ledger.Record(ctx, rec); err != nil {
			logCtx.Warn("Failed to record ingestion.", "error", err)
		}
	}
	logCtx.Info("Ingested file.", "document_id", docID, "chunks", len(docs),
		"text_chunks", counts[domain.ChunkText], "table_chunks", counts[domain.ChunkTable])
	return res
}

func (s *Service) summarize(logCtx *slog.Logger, docs []domain.Document) string {
	if s.summarizer == nil {
		return ""
	}
	var b strings.Builder
	for _, d := range docs {
		if d.Metadata.Type != domain.ChunkText {
			continue
		}
		b.WriteString(d.PageContent)
		b.WriteString("\n")
	}
	summary, err := s.summarizer.Summarize(b.String(), s.summarySentences)
	if err != nil {
		logCtx.Warn("Failed to summarize.", "error", err)
		return ""
	}
	return summary
}

// Documents lists the ledger, newest first.
func (s *Service) Documents(ctx context.Context) ([]domain.IngestionRecord, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.List(ctx)
}

// FindPDFs returns the PDF files under root in lexical order.
func FindPDFs(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if IsPDF(root) {
			return []string{root}, nil
		}
		return nil, fmt.Errorf("%w: %s is not a PDF", domain.ErrInvalidInput, root)
	}
	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsPDF(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

// IsPDF reports whether path has a .pdf extension, any case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
