package app

import (
	"context"
	"errors"
	"sync"

	"groundrag/internal/domain"
)

var (
	_ domain.Embedder    = lazyEmbedder{}
	_ domain.VectorIndex = lazyIndex{}
)

// retrievalBackend opens the vector index and the embedder on first use, so a
// process that only answers direct-mode queries never needs either. The index
// is opened first: a missing index is reported before any embedding call.
// A failed open is retried on the next query.
type retrievalBackend struct {
	mu           sync.Mutex
	embedderName string
	openIndex    func() (domain.VectorIndex, error)
	openEmbedder func() (domain.Embedder, error)
	index        domain.VectorIndex
	embedder     domain.Embedder
	closed       bool
}

func (b *retrievalBackend) open() (domain.Embedder, domain.VectorIndex, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, errors.New("retrieval backend is closed")
	}
	if b.index == nil {
		index, err := b.openIndex()
		if err != nil {
			return nil, nil, err
		}
		b.index = index
	}
	if b.embedder == nil {
		embedder, err := b.openEmbedder()
		if err != nil {
			return nil, nil, err
		}
		b.embedder = embedder
	}
	return b.embedder, b.index, nil
}

// Close releases whatever was opened, embedder first.
func (b *retrievalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	var errs []error
	if c, ok := b.embedder.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if b.index != nil {
		errs = append(errs, b.index.Close())
	}
	b.embedder, b.index = nil, nil
	return errors.Join(errs...)
}

type lazyEmbedder struct{ b *retrievalBackend }

func (e lazyEmbedder) Name() string { return e.b.embedderName }

func (e lazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedder, _, err := e.b.open()
	if err != nil {
		return nil, err
	}
	return embedder.Embed(ctx, text)
}

type lazyIndex struct{ b *retrievalBackend }

func (i lazyIndex) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]domain.Passage, error) {
	_, index, err := i.b.open()
	if err != nil {
		return nil, err
	}
	return index.SimilaritySearch(ctx, vector, k)
}

// Close is a no-op; the backend owns the index.
func (lazyIndex) Close() error { return nil }
