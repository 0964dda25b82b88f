// Package qdrant is a VectorIndex backed by a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"groundrag/internal/domain"
	"groundrag/internal/vectorstore"
)

var (
	_ domain.VectorIndex = (*Storage)(nil)
	_ vectorstore.Writer = (*Storage)(nil)
)

// Storage is a minimal REST client to Qdrant. Collections use cosine
// distance; Qdrant reports raw cosine, which is rescaled to [0, 1].
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

type payload struct {
	Text     string             `json:"text"`
	Metadata map[string]*string `json:"metadata,omitempty"`
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, domain.ConfigurationError("qdrant: url and collection are required", nil)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Init creates the collection for population tooling.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil)
}

// Upsert writes points. Record IDs are mapped to UUIDv5 because Qdrant only
// accepts integers or UUIDs as point IDs.
func (s *Storage) Upsert(records []vectorstore.Record) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Vector,
			"payload": payload{Text: r.Text, Metadata: r.Metadata},
		}
	}
	body := map[string]any{"points": points}
	return s.do(context.Background(), http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

// PointID derives the Qdrant point ID for a record ID.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("groundrag:"+id)).String()
}

func (s *Storage) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]domain.Passage, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.Passage{Text: r.Payload.Text, Metadata: r.Payload.Metadata, Score: vectorstore.Relevance(r.Score)})
	}
	return results, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.NewError(domain.KindRetrieval, domain.SubKindForStatus(resp.StatusCode),
			fmt.Sprintf("qdrant %s %s failed: %s", method, req.URL.Path, resp.Status), nil)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
