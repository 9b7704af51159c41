package domain

import "context"

// Embedder converts text into vectors.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the document-level contract the pipeline needs from a store.
type VectorStore interface {
	AddDocuments(ctx context.Context, docs []Document) error
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]ScoredDocument, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Retriever returns threshold-filtered results for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]RetrievalResult, error)
}

// Ledger records which files (by checksum) have been ingested.
type Ledger interface {
	Lookup(ctx context.Context, checksum string) (IngestionRecord, bool, error)
	Record(ctx context.Context, rec IngestionRecord) error
	List(ctx context.Context) ([]IngestionRecord, error)
	Clear(ctx context.Context) error
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
