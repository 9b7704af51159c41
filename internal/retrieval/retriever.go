// Package retrieval filters vector store hits by a similarity threshold.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"policyrag/internal/domain"
	"policyrag/internal/metrics"
)

const (
	DefaultK         = 8
	DefaultThreshold = 0.40
)

// Params overrides the configured k and threshold for one call.
// Zero K and nil Threshold keep the configured values.
type Params struct {
	K         int
	Threshold *float64
}

type Retriever struct {
	store     domain.VectorStore
	k         int
	threshold float64
	score     Scorer
	metrics   *metrics.Metrics
	log       *slog.Logger
}

type Option func(*Retriever)

func WithK(k int) Option { return func(r *Retriever) { r.k = k } }

func WithThreshold(t float64) Option { return func(r *Retriever) { r.threshold = t } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Retriever) { r.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(r *Retriever) { r.log = l } }

// New builds a retriever over store, scoring distances for the given metric.
func New(store domain.VectorStore, metric string, opts ...Option) (*Retriever, error) {
	score, err := ScorerFor(metric)
	if err != nil {
		return nil, err
	}
	r := &Retriever{
		store:     store,
		k:         DefaultK,
		threshold: DefaultThreshold,
		score:     score,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := validate(r.k, r.threshold); err != nil {
		return nil, err
	}
	return r, nil
}

// Retrieve runs a query with the configured k and threshold.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.RetrievalResult, error) {
	return r.RetrieveWith(ctx, query, Params{})
}

// RetrieveWith returns at most k results with score >= threshold, in the
// store's ranking order. An empty result is not an error.
func (r *Retriever) RetrieveWith(ctx context.Context, query string, p Params) ([]domain.RetrievalResult, error) {
	k, t := r.k, r.threshold
	if p.K != 0 {
		k = p.K
	}
	if p.Threshold != nil {
		t = *p.Threshold
	}
	if err := validate(k, t); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	start := time.Now()
	hits, err := r.store.SimilaritySearchWithScore(ctx, query, k)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrRetrievalUnavailable) {
			return nil, err
		}
		return nil, &domain.RetrievalUnavailableError{Err: err}
	}

	results := make([]domain.RetrievalResult, 0, min(len(hits), k))
	for _, h := range hits {
		if len(results) == k {
			break
		}
		s := r.score(h.Distance)
		if s < t {
			continue
		}
		results = append(results, domain.RetrievalResult{Document: h.Document, Score: s})
	}
	r.metrics.ObserveRetrieval(time.Since(start), len(results))
	r.log.Debug("Retrieved.", "candidates", len(hits), "kept", len(results), "k", k, "threshold", t)
	return results, nil
}

func validate(k int, t float64) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if t < 0 || t > 1 {
		return fmt.Errorf("%w: threshold must be within [0,1], got %v", domain.ErrInvalidInput, t)
	}
	return nil
}
