package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/domain"
)

type stubQueries struct {
	result   domain.QueryResult
	err      error
	document string
	query    string
}

func (s *stubQueries) RunRetrievalQuery(_ context.Context, query string) (domain.QueryResult, error) {
	s.query = query
	return s.result, s.err
}

func (s *stubQueries) RunDirectQuery(_ context.Context, documentText, query string) (domain.QueryResult, error) {
	s.document = documentText
	s.query = query
	return s.result, s.err
}

func TestNewServer(t *testing.T) {
	t.Run("nil query service returns error", func(t *testing.T) {
		server, err := NewServer(nil, nil)
		assert.ErrorIs(t, err, ErrMissingQueryService)
		assert.Nil(t, server)
	})

	t.Run("valid service creates server", func(t *testing.T) {
		server, err := NewServer(&stubQueries{}, nil)
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the answer with sources and context", func(t *testing.T) {
		stub := &stubQueries{result: domain.QueryResult{Answer: "A", Sources: []string{"doc1", "doc2"}, Context: "P1", Passages: []string{"P1"}}}
		server, err := NewServer(stub, nil)
		require.NoError(t, err)

		_, out, err := server.handleAsk(ctx, nil, AskInput{Question: "Q"})
		require.NoError(t, err)
		assert.Equal(t, "Q", stub.query)
		assert.Equal(t, "A", out.Answer)
		assert.Equal(t, []string{"doc1", "doc2"}, out.Sources)
		assert.Equal(t, "P1", out.Context)
		assert.Equal(t, []string{"P1"}, out.Passages)
	})

	t.Run("keeps the error kind", func(t *testing.T) {
		stub := &stubQueries{err: domain.AdequacyFailure()}
		server, err := NewServer(stub, nil)
		require.NoError(t, err)

		_, _, err = server.handleAsk(ctx, nil, AskInput{Question: "Q"})
		assert.ErrorIs(t, err, domain.ErrAdequacy)
		assert.Contains(t, err.Error(), "adequacy")
	})
}

func TestServer_handleAskDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("uses inline text", func(t *testing.T) {
		stub := &stubQueries{}
		server, err := NewServer(stub, nil)
		require.NoError(t, err)

		_, out, err := server.handleAskDocument(ctx, nil, AskDocumentInput{Question: "Q", DocumentText: "the contract"})
		require.NoError(t, err)
		assert.Equal(t, "the contract", stub.document)
		assert.Equal(t, []string{}, out.Sources)
	})

	t.Run("loads a file when no text is given", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lease.md")
		require.NoError(t, os.WriteFile(path, []byte("# Lease\nterms"), 0o644))

		stub := &stubQueries{}
		server, err := NewServer(stub, nil)
		require.NoError(t, err)

		_, _, err = server.handleAskDocument(ctx, nil, AskDocumentInput{Question: "Q", DocumentPath: path})
		require.NoError(t, err)
		assert.Equal(t, "# Lease\nterms", stub.document)
	})

	t.Run("requires a document", func(t *testing.T) {
		server, err := NewServer(&stubQueries{}, nil)
		require.NoError(t, err)

		_, _, err = server.handleAskDocument(ctx, nil, AskDocumentInput{Question: "Q"})
		assert.ErrorIs(t, err, errNoDocument)
	})

	t.Run("missing file", func(t *testing.T) {
		stub := &stubQueries{}
		server, err := NewServer(stub, nil)
		require.NoError(t, err)

		_, _, err = server.handleAskDocument(ctx, nil, AskDocumentInput{Question: "Q", DocumentPath: filepath.Join(t.TempDir(), "nope.txt")})
		require.Error(t, err)
		assert.Empty(t, stub.query)
	})
}
