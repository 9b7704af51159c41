package retrieval

import (
	"fmt"

	"policyrag/internal/domain"
)

// Scorer maps a store distance to a similarity in [0,1], 1 meaning identical.
type Scorer func(distance float64) float64

// ScorerFor returns the scorer matching a store's distance metric.
func ScorerFor(metric string) (Scorer, error) {
	switch metric {
	case "", "cosine":
		return cosineScore, nil
	case "l2":
		return l2Score, nil
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, metric)
	}
}

// cosine distance is 1 - cos, so similarity is 1 - d clamped to [0,1].
func cosineScore(d float64) float64 {
	s := 1 - d
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// l2 distance is unbounded; 1/(1+d) maps [0,inf) onto (0,1].
func l2Score(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}
