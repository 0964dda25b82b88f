// Package grounding builds the text a generator answers from: the grounding
// context and the prompt that wraps it.
package grounding

import (
	"strings"

	"groundrag/internal/domain"
)

// Separator delimits passages inside a retrieval-mode context. Passage text
// may itself contain it, so boundaries are carried by Texts, never recovered
// by splitting the context.
const Separator = "\n\n---\n\n"

// Assemble joins passage texts in the order given. It never reorders or
// deduplicates; ranking belongs to the retriever.
func Assemble(passages []domain.Passage) string {
	return strings.Join(Texts(passages), Separator)
}

// Texts returns the passage texts Assemble joins, in the same order.
func Texts(passages []domain.Passage) []string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return texts
}

// AssembleDocument returns the document verbatim as the context.
func AssembleDocument(text string) string {
	return text
}
