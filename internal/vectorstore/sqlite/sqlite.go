// Package sqlite is a VectorIndex stored in a single SQLite file. Vectors are
// little-endian float32 blobs ranked by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	_ "modernc.org/sqlite" // SQLite driver

	"groundrag/internal/domain"
	"groundrag/internal/vectorstore"
)

var (
	_ domain.VectorIndex = (*Store)(nil)
	_ vectorstore.Writer = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS passages (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	text      TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}',
	embedding BLOB NOT NULL
)`

// Store is a SQLite-backed index.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the index at path. With create true the file and schema are
// created as needed. With create false the index must already be built: the
// database is opened query-only, nothing is written to it, and a missing file
// or passages table is a configuration error.
func Open(path string, create bool) (*Store, error) {
	if !create {
		return openExisting(path)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func openExisting(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, domain.ConfigurationError(fmt.Sprintf("index database %s does not exist", path), err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	var tables int
	err = db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'passages'`).Scan(&tables)
	if err != nil {
		db.Close()
		return nil, domain.ConfigurationError(fmt.Sprintf("index database %s cannot be read", path), err)
	}
	if tables == 0 {
		db.Close()
		return nil, domain.ConfigurationError(fmt.Sprintf("index database %s has no passages table", path), nil)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Upsert inserts records in one transaction. An existing ID keeps its
// original position in insertion order.
func (s *Store) Upsert(records []vectorstore.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO passages (id, text, metadata, embedding) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata, embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %q has no vector", r.ID)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %q: %w", r.ID, err)
		}
		if _, err := stmt.Exec(r.ID, r.Text, string(meta), float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("inserting %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// SimilaritySearch scans every passage in insertion order and ranks them.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, metadata, embedding FROM passages ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var records []vectorstore.Record
	for rows.Next() {
		var (
			r        vectorstore.Record
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&r.ID, &r.Text, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		if metaJSON != "" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for %q: %w", r.ID, err)
			}
		}
		r.Vector = bytesToFloat32Slice(blob)
		if len(r.Vector) != len(vector) {
			return nil, fmt.Errorf("passage %q has %d dimensions, query has %d: %w",
				r.ID, len(r.Vector), len(vector), vectorstore.ErrDimensionMismatch)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("iterating passages: %w", err)
	}
	return vectorstore.TopK(records, vector, k), nil
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
