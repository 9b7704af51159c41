package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"policyrag/internal/domain"
)

// Collection turns a vector-level Storage into a document-level store by
// embedding text on the way in and queries on the way out.
type Collection struct {
	store    Storage
	embedder domain.Embedder

	mu        sync.Mutex
	dimension int
}

func NewCollection(store Storage, embedder domain.Embedder) *Collection {
	return &Collection{store: store, embedder: embedder}
}

// AddDocuments embeds and writes docs.
func (c *Collection) AddDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}
	if err := c.ensure(ctx, len(vecs[0])); err != nil {
		return err
	}
	if err := c.store.Upsert(ctx, docs, vecs); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// SimilaritySearchWithScore returns up to k documents by ascending distance.
// Any failure after input validation is a RetrievalUnavailableError.
func (c *Collection) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]domain.ScoredDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}
	vecs, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &domain.RetrievalUnavailableError{Err: fmt.Errorf("embed query: %w", err)}
	}
	if len(vecs) != 1 {
		return nil, &domain.RetrievalUnavailableError{Err: fmt.Errorf("embedder returned %d vectors for one query", len(vecs))}
	}
	if err := c.ensure(ctx, len(vecs[0])); err != nil {
		return nil, &domain.RetrievalUnavailableError{Err: err}
	}
	hits, err := c.store.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, &domain.RetrievalUnavailableError{Err: err}
	}
	return hits, nil
}

// DeleteDocument removes every chunk written for documentID.
func (c *Collection) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", domain.ErrInvalidInput)
	}
	if err := c.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// Clear removes every stored vector. The next write re-initializes the store.
func (c *Collection) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.dimension = 0
	c.mu.Unlock()
	return nil
}

func (c *Collection) ensure(ctx context.Context, dimension int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == dimension {
		return nil
	}
	if c.dimension != 0 {
		return fmt.Errorf("vector dimension changed from %d to %d", c.dimension, dimension)
	}
	if err := c.store.Init(ctx, dimension); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.dimension = dimension
	return nil
}
