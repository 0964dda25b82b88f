package domain

import "context"

// MetadataSource is the metadata key surfaced to callers as a passage's provenance.
const MetadataSource = "source"

// Passage is a piece of indexed text returned by a similarity search.
// Metadata values are optional: a nil value means the key exists without a value.
type Passage struct {
	Text     string
	Metadata map[string]*string
	// Score is relevance on a [0, 1] scale, 1 being identical.
	Score float64
}

// Source returns the passage's "source" metadata, or "" when absent.
func (p Passage) Source() string {
	if v, ok := p.Metadata[MetadataSource]; ok && v != nil {
		return *v
	}
	return ""
}

// QueryResult is the outcome of one successful pipeline invocation.
// Passages holds the texts Context was assembled from, in order, so that
// boundaries never have to be recovered by splitting Context. It is empty in
// direct mode, where Context is the document verbatim.
type QueryResult struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Context  string   `json:"context"`
	Passages []string `json:"passages,omitempty"`
}

// Embedder converts free text into a numeric vector representation.
// It must produce vectors in the same space the VectorIndex was built with.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is a persisted store of embedded passages supporting similarity search.
// Results are ordered by descending score; ties keep insertion order. Scores
// are on the [0, 1] relevance scale whatever the backend's native metric.
type VectorIndex interface {
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]Passage, error)
	Close() error
}

// Generator turns a prompt into an answer, usually through a remote model.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryService defines the operations exposed by the application core to its shells.
type QueryService interface {
	RunRetrievalQuery(ctx context.Context, query string) (QueryResult, error)
	RunDirectQuery(ctx context.Context, documentText, query string) (QueryResult, error)
}
