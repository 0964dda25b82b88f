// Package mongo is a VectorIndex backed by a MongoDB Atlas Vector Search index.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"groundrag/internal/domain"
)

var _ domain.VectorIndex = (*Store)(nil)

// Default configuration values.
const (
	DefaultIndex         = "vector_index"
	DefaultPath          = "embedding"
	minCandidates        = 100
	candidatesMultiplier = 10
)

// Config holds connection and index details.
type Config struct {
	URI        string
	Database   string
	Collection string
	// Index is the Atlas Vector Search index name (default: vector_index).
	Index string
	// Path is the document field holding the vector (default: embedding).
	Path string
}

type aggregateFunc func(ctx context.Context, pipeline any) (*mongo.Cursor, error)

// Store runs $vectorSearch aggregations. Documents carry "text" and an
// optional "metadata" sub-document of strings.
type Store struct {
	client    *mongo.Client
	index     string
	path      string
	aggregate aggregateFunc
}

type hit struct {
	Text     string             `bson:"text"`
	Metadata map[string]*string `bson:"metadata"`
	Score    float64            `bson:"score"`
}

// Open connects to the cluster. The driver connects lazily; the first
// search surfaces connectivity errors.
func Open(cfg Config) (*Store, error) {
	if cfg.URI == "" || cfg.Database == "" || cfg.Collection == "" {
		return nil, domain.ConfigurationError("mongo: uri, database and collection are required", nil)
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, domain.ConfigurationError("mongo: invalid connection settings", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return &Store{
		client: client,
		index:  cfg.Index,
		path:   cfg.Path,
		aggregate: func(ctx context.Context, pipeline any) (*mongo.Cursor, error) {
			return coll.Aggregate(ctx, pipeline)
		},
	}, nil
}

// SearchPipeline builds the aggregation for a k-nearest query.
func (s *Store) SearchPipeline(vector []float32, k int) mongo.Pipeline {
	candidates := k * candidatesMultiplier
	if candidates < minCandidates {
		candidates = minCandidates
	}
	query := make([]float64, len(vector))
	for i, v := range vector {
		query[i] = float64(v)
	}
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.index},
			{Key: "path", Value: s.path},
			{Key: "queryVector", Value: query},
			{Key: "numCandidates", Value: candidates},
			{Key: "limit", Value: k},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "text", Value: 1},
			{Key: "metadata", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

// SimilaritySearch runs the aggregation. Atlas already reports cosine
// scores as (1 + cos) / 2, the [0, 1] relevance scale, so they pass through.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]domain.Passage, error) {
	cursor, err := s.aggregate(ctx, s.SearchPipeline(vector, k))
	if err != nil {
		return nil, fmt.Errorf("mongo: vector search: %w", err)
	}
	var hits []hit
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("mongo: decoding results: %w", err)
	}
	out := make([]domain.Passage, len(hits))
	for i, h := range hits {
		out[i] = domain.Passage{Text: h.Text, Metadata: h.Metadata, Score: h.Score}
	}
	return out, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
