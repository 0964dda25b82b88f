package grounding

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/domain"
)

func passage(text string) domain.Passage {
	return domain.Passage{Text: text}
}

func TestAssemble(t *testing.T) {
	t.Run("joins passages with the separator in order", func(t *testing.T) {
		got := Assemble([]domain.Passage{passage("first"), passage("second"), passage("third")})
		assert.Equal(t, "first"+Separator+"second"+Separator+"third", got)
	})

	t.Run("keeps duplicates", func(t *testing.T) {
		in := []domain.Passage{passage("same"), passage("same")}
		assert.Equal(t, "same"+Separator+"same", Assemble(in))
		assert.Equal(t, []string{"same", "same"}, Texts(in))
	})

	t.Run("single passage has no separator", func(t *testing.T) {
		assert.Equal(t, "only", Assemble([]domain.Passage{passage("only")}))
	})

	t.Run("empty set is empty context", func(t *testing.T) {
		assert.Equal(t, "", Assemble(nil))
		assert.Empty(t, Texts(nil))
	})

	t.Run("passage containing the separator keeps its boundary", func(t *testing.T) {
		in := []domain.Passage{passage("Rule 1" + Separator + "Note"), passage("Rule 2")}
		assert.Equal(t, "Rule 1"+Separator+"Note"+Separator+"Rule 2", Assemble(in))
		assert.Equal(t, []string{"Rule 1" + Separator + "Note", "Rule 2"}, Texts(in))
	})
}

func TestAssembleDocument(t *testing.T) {
	doc := "  Line one.\n\n---\n\nLine two with trailing space \n"
	assert.Equal(t, doc, AssembleDocument(doc), "document must be used verbatim")
}

func TestNewPromptBuilder(t *testing.T) {
	t.Run("default template is valid", func(t *testing.T) {
		b, err := NewPromptBuilder(DefaultTemplate, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxChars, b.MaxChars())
	})

	t.Run("missing context slot", func(t *testing.T) {
		_, err := NewPromptBuilder("Answer {question}", 100)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrTemplate))
		assert.Contains(t, err.Error(), ContextSlot)
	})

	t.Run("missing question slot", func(t *testing.T) {
		_, err := NewPromptBuilder("Context: {context}", 100)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrTemplate))
	})

	t.Run("duplicated slot", func(t *testing.T) {
		_, err := NewPromptBuilder("{context} {context} {question}", 100)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 {context} slots")
	})
}

func TestPromptBuilderBuild(t *testing.T) {
	t.Run("substitutes both slots", func(t *testing.T) {
		b, err := NewPromptBuilder("C=[{context}] Q=[{question}]", 100)
		require.NoError(t, err)

		got, err := b.Build("ctx", "why?")
		require.NoError(t, err)
		assert.Equal(t, "C=[ctx] Q=[why?]", got)
	})

	t.Run("slot markers in inputs stay literal", func(t *testing.T) {
		b, err := NewPromptBuilder("C=[{context}] Q=[{question}]", 100)
		require.NoError(t, err)

		got, err := b.Build("has {question}", "has {context}")
		require.NoError(t, err)
		assert.Equal(t, "C=[has {question}] Q=[has {context}]", got)
	})

	t.Run("prompt at the limit is accepted", func(t *testing.T) {
		b, err := NewPromptBuilder("{context}{question}", 10)
		require.NoError(t, err)

		got, err := b.Build(strings.Repeat("é", 9), "?")
		require.NoError(t, err)
		assert.Len(t, []rune(got), 10)
	})

	t.Run("prompt over the limit is a template error", func(t *testing.T) {
		b, err := NewPromptBuilder("{context}{question}", 10)
		require.NoError(t, err)

		_, err = b.Build(strings.Repeat("x", 10), "?")
		require.Error(t, err)
		derr, ok := domain.AsError(err)
		require.True(t, ok)
		assert.Equal(t, domain.KindTemplate, derr.Kind)
		assert.Equal(t, domain.StagePrompting, derr.Stage)
	})
}
