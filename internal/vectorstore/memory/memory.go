// Package memory is an in-process VectorIndex loaded from a JSON snapshot file.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"groundrag/internal/domain"
	"groundrag/internal/vectorstore"
)

var (
	_ domain.VectorIndex = (*Storage)(nil)
	_ vectorstore.Writer = (*Storage)(nil)
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []vectorstore.Record
}

type snapshot struct {
	Dimension int                  `json:"dimension"`
	Records   []vectorstore.Record `json:"records"`
}

func NewStorage(dimension int) *Storage { return &Storage{dimension: dimension} }

// Open loads a snapshot written by Save.
func Open(path string) (*Storage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ConfigurationError(fmt.Sprintf("index snapshot %s does not exist", path), err)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, domain.ConfigurationError(fmt.Sprintf("index snapshot %s is not valid JSON", path), err)
	}
	s := NewStorage(snap.Dimension)
	if err := s.Upsert(snap.Records); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return s, nil
}

// Save writes the index to path, creating directories as needed.
func (s *Storage) Save(path string) error {
	s.mu.RLock()
	data, err := json.Marshal(snapshot{Dimension: s.dimension, Records: s.records})
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Upsert appends records, replacing any with the same ID in place so the
// original insertion position is kept. A zero dimension is taken from the first vector.
func (s *Storage) Upsert(records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if s.dimension == 0 {
			s.dimension = len(r.Vector)
		}
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("record %q: %w", r.ID, vectorstore.ErrDimensionMismatch)
		}
	}
	for _, r := range records {
		replaced := false
		if r.ID != "" {
			for i := range s.records {
				if s.records[i].ID == r.ID {
					s.records[i] = r
					replaced = true
					break
				}
			}
		}
		if !replaced {
			s.records = append(s.records, r)
		}
	}
	return nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Storage) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]domain.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(vector), s.dimension, vectorstore.ErrDimensionMismatch)
	}
	return vectorstore.TopK(s.records, vector, k), nil
}

func (s *Storage) Close() error { return nil }
