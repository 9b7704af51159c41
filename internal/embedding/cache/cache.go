// Package cache wraps an embedder with a key/value cache of vectors keyed by
// embedder name and text hash.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"policyrag/internal/checksum"
	"policyrag/internal/domain"
)

// Backend stores raw vector bytes.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedder serves vectors from the backend and embeds only the misses.
// Backend failures are logged and treated as misses.
type Embedder struct {
	inner   domain.Embedder
	backend Backend
	ttl     time.Duration
	log     *slog.Logger
}

func New(inner domain.Embedder, backend Backend, ttl time.Duration, log *slog.Logger) *Embedder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Embedder{inner: inner, backend: backend, ttl: ttl, log: log}
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = e.key(text)
		raw, ok, err := e.backend.Get(ctx, keys[i])
		if err != nil {
			e.log.Warn("Embedding cache get failed.", "error", err)
		}
		if ok {
			if vec, err := decode(raw); err == nil {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := e.backend.Set(ctx, keys[i], encode(vecs[j]), e.ttl); err != nil {
			e.log.Warn("Embedding cache set failed.", "error", err)
		}
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	return "emb:" + e.inner.Name() + ":" + checksum.String(text)
}

func encode(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decode(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}
