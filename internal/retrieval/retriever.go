// Package retrieval turns a query into a ranked set of passages and decides
// whether they are relevant enough to ground an answer.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"groundrag/internal/async"
	"groundrag/internal/domain"
)

// Defaults for the adequacy guard.
const (
	DefaultTopK           = 3
	DefaultRelevanceFloor = 0.7
)

// Retriever embeds a query, searches the index and applies the adequacy guard.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	timeout  time.Duration
	log      *zap.Logger
}

// New builds a Retriever. timeout bounds each capability call; zero disables it.
func New(embedder domain.Embedder, index domain.VectorIndex, timeout time.Duration, log *zap.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("retrieval: embedder is required")
	}
	if index == nil {
		return nil, errors.New("retrieval: vector index is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, timeout: timeout, log: log}, nil
}

// Retrieve returns at most k passages in descending score order. It fails with
// an adequacy error when nothing comes back or the best score is below floor;
// otherwise every passage returned by the search is kept, including those
// individually below floor.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, floor float64) ([]domain.Passage, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	r.log.Debug("stage", zap.String("stage", string(domain.StageEmbedding)), zap.String("embedder", r.embedder.Name()))
	vector, err := async.Call(ctx, r.timeout, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, domain.StageFailure(domain.StageEmbedding, domain.KindRetrieval, "embedding the query failed", err)
	}
	if len(vector) == 0 {
		e := domain.NewError(domain.KindRetrieval, domain.SubKindMalformedResponse, "embedder returned an empty vector", nil)
		e.Stage = domain.StageEmbedding
		return nil, e
	}

	r.log.Debug("stage", zap.String("stage", string(domain.StageRetrieving)), zap.Int("k", k))
	hits, err := async.Call(ctx, r.timeout, func(ctx context.Context) ([]domain.Passage, error) {
		return r.index.SimilaritySearch(ctx, vector, k)
	})
	if err != nil {
		return nil, domain.StageFailure(domain.StageRetrieving, domain.KindRetrieval, "similarity search failed", err)
	}

	ranked := Rank(hits, k)
	r.log.Debug("stage", zap.String("stage", string(domain.StageAdequacy)), zap.Int("passages", len(ranked)))
	if !Adequate(ranked, floor) {
		return nil, domain.AdequacyFailure()
	}
	return ranked, nil
}

// Rank orders passages by descending score, keeping the index's order for
// ties, and truncates to k.
func Rank(passages []domain.Passage, k int) []domain.Passage {
	out := make([]domain.Passage, len(passages))
	copy(out, passages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Adequate reports whether ranked passages can ground an answer: there is at
// least one and the best meets floor. A top score equal to floor passes.
func Adequate(ranked []domain.Passage, floor float64) bool {
	return len(ranked) > 0 && ranked[0].Score >= floor
}

// Sources lists each passage's source metadata in passage order, "" when absent.
func Sources(passages []domain.Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Source()
	}
	return out
}
