package grounding

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"groundrag/internal/domain"
)

// Template slots.
const (
	ContextSlot  = "{context}"
	QuestionSlot = "{question}"
)

// DefaultMaxChars bounds a rendered prompt when no limit is configured.
const DefaultMaxChars = 64000

// DefaultTemplate frames the generator as a legal-reasoning assistant that must
// answer from the supplied context only.
const DefaultTemplate = `
You are to act like a lawyer who will assess the situation provided and answer the question based only on the following context:

{context}

---

Provide a clear explanation of how the situation can be resolved, including reasoning and any relevant interpretations of the rules. Answer the question as simply and specifically as possible while ensuring fairness and compliance with the context: {question}
`

// PromptBuilder renders a template with exactly one context slot and one question slot.
type PromptBuilder struct {
	template string
	maxChars int
}

// NewPromptBuilder validates the template. maxChars <= 0 selects DefaultMaxChars.
func NewPromptBuilder(template string, maxChars int) (*PromptBuilder, error) {
	for _, slot := range []string{ContextSlot, QuestionSlot} {
		switch n := strings.Count(template, slot); n {
		case 1:
		case 0:
			return nil, domain.TemplateError(fmt.Sprintf("template is missing the %s slot", slot), nil)
		default:
			return nil, domain.TemplateError(fmt.Sprintf("template has %d %s slots, want 1", n, slot), nil)
		}
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &PromptBuilder{template: template, maxChars: maxChars}, nil
}

// MaxChars is the largest prompt, in runes, Build will return.
func (b *PromptBuilder) MaxChars() int { return b.maxChars }

// Build substitutes both slots in a single pass, so slot markers inside the
// context or question stay literal.
func (b *PromptBuilder) Build(context, question string) (string, error) {
	prompt := strings.NewReplacer(ContextSlot, context, QuestionSlot, question).Replace(b.template)
	if n := utf8.RuneCountInString(prompt); n > b.maxChars {
		return "", domain.TemplateError(
			fmt.Sprintf("prompt is %d characters, limit is %d", n, b.maxChars), nil)
	}
	return prompt, nil
}
