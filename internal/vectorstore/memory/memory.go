package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"policyrag/internal/domain"
	"policyrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force distance.
type Storage struct {
	mu        sync.RWMutex
	metric    string
	dimension int
	vectors   [][]float32
	docs      []domain.Document
}

// NewStorage returns an empty store. Unknown metrics fall back to cosine.
func NewStorage(metric string) *Storage {
	if metric != vectorstore.MetricL2 {
		metric = vectorstore.MetricCosine
	}
	return &Storage{metric: metric}
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return fmt.Errorf("store holds %d-dimensional vectors, got %d", s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return errors.New("documents and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("store not initialized")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.docs = append(s.docs, docs...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	dists := make([]float64, len(s.vectors))
	for i := range s.vectors {
		dists[i] = s.distance(s.vectors[i], vector)
	}
	idxs := make([]int, len(dists))
	for i := range idxs {
		idxs[i] = i
	}
	// stable so equal distances keep insertion order
	sort.SliceStable(idxs, func(a, b int) bool { return dists[idxs[a]] < dists[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.ScoredDocument, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.ScoredDocument{Document: s.docs[j], Distance: dists[j]})
	}
	return results, nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.docs = nil
	return nil
}

// DeleteDocument drops every chunk of one document.
func (s *Storage) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, vectors := s.docs[:0], s.vectors[:0]
	for i, d := range s.docs {
		if d.Metadata.DocumentID == documentID {
			continue
		}
		docs = append(docs, d)
		vectors = append(vectors, s.vectors[i])
	}
	clear(s.docs[len(docs):])
	s.docs, s.vectors = docs, vectors
	return nil
}

// Len reports the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Storage) distance(a, b []float32) float64 {
	if s.metric == vectorstore.MetricL2 {
		return l2(a, b)
	}
	return cosineDistance(a, b)
}

func cosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func l2(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
