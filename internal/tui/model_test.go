package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/document"
	"groundrag/internal/domain"
	"groundrag/internal/grounding"
)

type stubQueries struct {
	direct    int
	retrieval int
	result    domain.QueryResult
	err       error
}

func (s *stubQueries) RunRetrievalQuery(_ context.Context, query string) (domain.QueryResult, error) {
	s.retrieval++
	return s.result, s.err
}

func (s *stubQueries) RunDirectQuery(_ context.Context, documentText, query string) (domain.QueryResult, error) {
	s.direct++
	return s.result, s.err
}

func submit(t *testing.T, m Model, q string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(q)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	return next.(Model), cmd
}

func TestAnswerIsShown(t *testing.T) {
	stub := &stubQueries{result: domain.QueryResult{
		Answer:   "A",
		Sources:  []string{"doc1", "doc2"},
		Context:  "P1\n\n---\n\nnote" + grounding.Separator + "P2",
		Passages: []string{"P1\n\n---\n\nnote", "P2"},
	}}
	m := New(context.Background(), stub, nil)

	m, cmd := submit(t, m, "Q")
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Equal(t, 1, stub.retrieval)
	require.NotNil(t, m.result)
	assert.Equal(t, []string{"P1\n\n---\n\nnote", "P2"}, m.passages)
	view := m.renderCurrentResult()
	assert.Contains(t, view, "A")
	assert.Contains(t, view, "doc1, doc2")
	assert.Contains(t, view, "Context 1/2")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 1, m.cursor)
}

func TestStaleAnswerIsDropped(t *testing.T) {
	stub := &stubQueries{result: domain.QueryResult{Answer: "first"}}
	m := New(context.Background(), stub, nil)

	m, first := submit(t, m, "one")
	stale := first()
	m, _ = submit(t, m, "two")

	next, _ := m.Update(stale)
	m = next.(Model)
	assert.Nil(t, m.result)
	assert.NotNil(t, m.cancel)
}

func TestEscCancels(t *testing.T) {
	stub := &stubQueries{}
	m := New(context.Background(), stub, nil)

	m, cmd := submit(t, m, "Q")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	assert.Nil(t, m.cancel)
	assert.Equal(t, "Canceled.", m.status)

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Nil(t, m.result)
}

func TestTabSwitchesModeOnlyWithDocument(t *testing.T) {
	stub := &stubQueries{}

	m := New(context.Background(), stub, nil)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.False(t, next.(Model).direct)

	m = New(context.Background(), stub, &document.Document{Name: "lease.md", Text: "terms"})
	assert.True(t, m.direct)
	m, cmd := submit(t, m, "Q")
	m.Update(cmd())
	assert.Equal(t, 1, stub.direct)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.False(t, next.(Model).direct)
	assert.Equal(t, "Mode: retrieval", next.(Model).status)
}

func TestErrorsAreDescribed(t *testing.T) {
	stub := &stubQueries{err: domain.AdequacyFailure()}
	m := New(context.Background(), stub, nil)

	m, cmd := submit(t, m, "Q")
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.True(t, strings.HasPrefix(m.status, "Error: no sufficiently relevant passages"))
	assert.Nil(t, m.result)
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("The rent is due monthly. Pets are allowed.", "when is rent due")
	assert.Contains(t, out, "Pets are allowed.")
	assert.Contains(t, out, "rent")
}
