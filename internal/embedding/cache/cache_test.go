package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapBackend struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMapBackend() *mapBackend { return &mapBackend{data: map[string][]byte{}} }

func (m *mapBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type countingEmbedder struct {
	seen []string
	err  error
}

func (c *countingEmbedder) Name() string   { return "counting" }
func (c *countingEmbedder) Dimension() int { return 2 }
func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.seen = append(c.seen, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

func TestCacheEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	e := New(inner, newMapBackend(), time.Hour, nil)

	first, err := e.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0.5}, {2, 0.5}}, first)

	second, err := e.Embed(context.Background(), []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 0.5}, {3, 0.5}, {1, 0.5}}, second)
	assert.Equal(t, []string{"a", "bb", "ccc"}, inner.seen)
	assert.Equal(t, "counting", e.Name())
	assert.Equal(t, 2, e.Dimension())
}

func TestCacheBackendFailureFallsThrough(t *testing.T) {
	backend := newMapBackend()
	backend.getErr = errors.New("connection refused")
	inner := &countingEmbedder{}
	e := New(inner, backend, time.Hour, nil)

	vecs, err := e.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0.5}}, vecs)
}

func TestCacheInnerError(t *testing.T) {
	e := New(&countingEmbedder{err: errors.New("quota")}, newMapBackend(), time.Hour, nil)
	_, err := e.Embed(context.Background(), []string{"x"})
	assert.EqualError(t, err, "quota")
}

func TestEncodeDecode(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	got, err := decode(encode(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
