package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/domain"
	"policyrag/internal/vectorstore"
)

func TestInitCreatesMissingCollection(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/policies", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"result": true}`))
		}
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "policies"})
	require.NoError(t, s.Init(context.Background(), 4))
	vectors := created["vectors"].(map[string]any)
	assert.Equal(t, float64(4), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestInitKeepsExistingCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"result": {}}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "policies"})
	require.NoError(t, s.Init(context.Background(), 4))
}

func TestUpsertAndSearch(t *testing.T) {
	const chunkID = "0b9c3f7e-3f5b-4f1e-9d7a-1f2e3d4c5b6a"
	var upserted struct {
		Points []struct {
			ID      string  `json:"id"`
			Payload payload `json:"payload"`
		} `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/policies/points":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			_, _ = w.Write([]byte(`{"result": {}}`))
		case "/collections/policies/points/search":
			_, _ = w.Write([]byte(`{"result": [
				{"score": 0.62, "payload": {"page_content": "Entry age 18 to 65", "metadata": {"file_name": "y.pdf", "page_number": 3, "type": "text"}}},
				{"score": 0.21, "payload": {"page_content": "Ambulance cover", "metadata": {"file_name": "y.pdf", "page_number": 7, "type": "text"}}}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "policies"})
	ctx := context.Background()
	doc := domain.Document{PageContent: "Entry age 18 to 65", Metadata: domain.Metadata{ChunkID: chunkID, PageNumber: 3}}
	require.NoError(t, s.Upsert(ctx, []domain.Document{doc}, [][]float32{{0.1, 0.2}}))
	require.Len(t, upserted.Points, 1)
	assert.Equal(t, chunkID, upserted.Points[0].ID)
	assert.Equal(t, 3, upserted.Points[0].Payload.Metadata.PageNumber)

	hits, err := s.Search(ctx, []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.InDelta(t, 0.38, hits[0].Distance, 1e-9)
	assert.InDelta(t, 0.79, hits[1].Distance, 1e-9)
	assert.Equal(t, 3, hits[0].Document.Metadata.PageNumber)
	assert.Equal(t, "y.pdf", hits[0].Document.Metadata.FileName)
}

func TestSearchEuclidKeepsRawDistance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": [{"score": 1.5, "payload": {"page_content": "x", "metadata": {}}}]}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "c", Metric: vectorstore.MetricL2})
	hits, err := s.Search(context.Background(), []float32{1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, hits[0].Distance, 1e-9)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "c"})
	_, err := s.Search(context.Background(), []float32{1}, 1)
	assert.Error(t, err)
}

func TestClearIgnoresMissingCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "c"})
	assert.NoError(t, s.Clear(context.Background()))
}

func TestDeleteDocumentFiltersOnDocumentID(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/policies/points/delete", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"result": {"status": "completed"}}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "policies"})
	require.NoError(t, s.DeleteDocument(context.Background(), "doc-1"))

	must := body["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "metadata.document_id", cond["key"])
	assert.Equal(t, "doc-1", cond["match"].(map[string]any)["value"])
}

func TestPointID(t *testing.T) {
	assert.Equal(t, "0b9c3f7e-3f5b-4f1e-9d7a-1f2e3d4c5b6a", pointID("0b9c3f7e-3f5b-4f1e-9d7a-1f2e3d4c5b6a"))
	assert.Equal(t, pointID("doc:1"), pointID("doc:1"))
	assert.NotEqual(t, pointID(""), pointID(""))
}
