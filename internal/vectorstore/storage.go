// Package vectorstore holds what the VectorIndex adapters share: the record
// shape used to populate an index and brute-force cosine ranking.
package vectorstore

import (
	"errors"
	"math"
	"sort"

	"groundrag/internal/domain"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is one (vector, text, metadata) triple of a pre-built index.
type Record struct {
	ID       string             `json:"id"`
	Text     string             `json:"text"`
	Metadata map[string]*string `json:"metadata,omitempty"`
	Vector   []float32          `json:"vector"`
}

// Writer is implemented by adapters that can be populated from Go. The query
// pipeline never writes; this exists for fixtures and external tooling.
type Writer interface {
	Upsert(records []Record) error
}

// Cosine returns the cosine similarity of a and b over their common prefix,
// or 0 when either has zero norm.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Relevance maps a cosine similarity in [-1, 1] onto the [0, 1] relevance
// scale every VectorIndex reports: (1 + cos) / 2.
func Relevance(cos float64) float64 {
	r := (1 + cos) / 2
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// TopK scores every record against query and returns the best k passages,
// scored by Relevance. Records are assumed to be in insertion order; ties
// keep that order.
func TopK(records []Record, query []float32, k int) []domain.Passage {
	out := make([]domain.Passage, len(records))
	for i, r := range records {
		out[i] = domain.Passage{Text: r.Text, Metadata: r.Metadata, Score: Relevance(Cosine(r.Vector, query))}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// StringPtr is a helper for building metadata maps.
func StringPtr(s string) *string { return &s }
