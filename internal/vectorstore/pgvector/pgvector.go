// Package pgvector is a VectorIndex in PostgreSQL using the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"groundrag/internal/domain"
	"groundrag/internal/vectorstore"
)

var (
	_ domain.VectorIndex = (*Store)(nil)
	_ vectorstore.Writer = (*Store)(nil)
)

// DefaultTable holds the passages when no table is configured.
const DefaultTable = "groundrag_passages"

// Config holds connection details.
type Config struct {
	// DSN is a lib/pq connection string or URL.
	DSN string
	// Table is the passages table (default: groundrag_passages).
	Table string
	// Dimension sizes the vector column when the table is created.
	Dimension int
}

// Store queries a passages table by cosine distance.
type Store struct {
	db    *sql.DB
	table string
}

// Open prepares a connection pool. No connection is made until the first
// query, so a bad DSN surfaces as a retrieval error.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, domain.ConfigurationError("pgvector: DSN is required", nil)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, domain.ConfigurationError("pgvector: invalid DSN", err)
	}
	return &Store{db: db, table: pq.QuoteIdentifier(cfg.Table)}, nil
}

// EnsureSchema creates the extension and table. Only population tooling calls it.
func (s *Store) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("pgvector: invalid dimension %d", dimension)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq       BIGSERIAL PRIMARY KEY,
			id        TEXT NOT NULL UNIQUE,
			text      TEXT NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, s.table, dimension),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert writes records in one transaction, keeping an existing row's position.
func (s *Store) Upsert(records []vectorstore.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`INSERT INTO %s (id, text, metadata, embedding) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table)
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: encoding metadata for %q: %w", r.ID, err)
		}
		if r.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := tx.Exec(query, r.ID, r.Text, string(meta), pgvector.NewVector(r.Vector)); err != nil {
			return fmt.Errorf("pgvector: inserting %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// SimilaritySearch returns the k nearest passages. pgvector's cosine distance
// d is 1 - cos, so the [0, 1] relevance (1 + cos) / 2 is 1 - d/2. Ties fall
// back to insertion order.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]domain.Passage, error) {
	query := fmt.Sprintf(`SELECT text, metadata, 1 - (embedding <=> $1) / 2 AS score
		FROM %s ORDER BY embedding <=> $1, seq LIMIT $2`, s.table)
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Passage
	for rows.Next() {
		var (
			p    domain.Passage
			meta []byte
		)
		if err := rows.Scan(&p.Text, &meta, &p.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &p.Metadata); err != nil {
				return nil, fmt.Errorf("pgvector: decoding metadata: %w", err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
