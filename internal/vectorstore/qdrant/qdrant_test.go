package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/domain"
	"groundrag/internal/vectorstore"
)

func TestNewStorageRequiresLocation(t *testing.T) {
	_, err := NewStorage(Config{URL: "http://localhost:6333"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSimilaritySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/rules/points/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))

		var req struct {
			Vector      []float32 `json:"vector"`
			Limit       int       `json:"limit"`
			WithPayload bool      `json:"with_payload"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []float32{0.1, 0.2}, req.Vector)
		assert.Equal(t, 3, req.Limit)
		assert.True(t, req.WithPayload)

		_, _ = w.Write([]byte(`{"result":[
			{"id":"x","score":0.91,"payload":{"text":"P1","metadata":{"source":"doc1"}}},
			{"id":"y","score":0.82,"payload":{"text":"P2"}}
		],"status":"ok"}`))
	}))
	defer srv.Close()

	s, err := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "rules"})
	require.NoError(t, err)

	got, err := s.SimilaritySearch(context.Background(), []float32{0.1, 0.2}, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].Text)
	assert.Equal(t, "doc1", got[0].Source())
	assert.InDelta(t, 0.955, got[0].Score, 1e-9)
	assert.InDelta(t, 0.91, got[1].Score, 1e-9)
	assert.Equal(t, "", got[1].Source())
}

func TestSimilaritySearchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s, err := NewStorage(Config{URL: srv.URL, Collection: "missing"})
	require.NoError(t, err)
	_, err = s.SimilaritySearch(context.Background(), []float32{1}, 3)
	assert.ErrorIs(t, err, domain.ErrRetrieval)
}

func TestUpsert(t *testing.T) {
	var body struct {
		Points []struct {
			ID      string    `json:"id"`
			Vector  []float32 `json:"vector"`
			Payload payload   `json:"payload"`
		} `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/rules/points", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	s, err := NewStorage(Config{URL: srv.URL, Collection: "rules"})
	require.NoError(t, err)
	require.NoError(t, s.Upsert([]vectorstore.Record{{ID: "r1", Text: "Rule 1", Vector: []float32{1, 0}}}))

	require.Len(t, body.Points, 1)
	assert.Equal(t, PointID("r1"), body.Points[0].ID)
	assert.Equal(t, "Rule 1", body.Points[0].Payload.Text)
	assert.NotEqual(t, PointID("r1"), PointID("r2"))
}
