package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/grounding"
)

func TestTemplateDefaults(t *testing.T) {
	t.Run("no path", func(t *testing.T) {
		got, err := NewStore("", nil).Template()
		require.NoError(t, err)
		assert.Equal(t, grounding.DefaultTemplate, got)
	})

	t.Run("missing file", func(t *testing.T) {
		got, err := NewStore(filepath.Join(t.TempDir(), "prompt.toml"), nil).Template()
		require.NoError(t, err)
		assert.Equal(t, grounding.DefaultTemplate, got)
	})
}

func TestTemplateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.toml")
	require.NoError(t, Save(path, "C: {context}\nQ: {question}"))

	s := NewStore(path, nil)
	got, err := s.Template()
	require.NoError(t, err)
	assert.Equal(t, "C: {context}\nQ: {question}", got)

	require.NoError(t, Save(path, "changed {context} {question}"))
	got, err = s.Template()
	require.NoError(t, err)
	assert.Equal(t, "C: {context}\nQ: {question}", got, "cached until reload")

	s.Reload()
	got, err = s.Template()
	require.NoError(t, err)
	assert.Equal(t, "changed {context} {question}", got)
}

func TestTemplateMalformed(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("template = \"unterminated"), 0o644))
	s := NewStore(bad, nil)
	_, err := s.Template()
	assert.Error(t, err)
	_, err = s.Template()
	assert.Error(t, err, "errors are not cached")

	empty := filepath.Join(dir, "empty.toml")
	require.NoError(t, os.WriteFile(empty, []byte("other = 1\n"), 0o644))
	_, err = NewStore(empty, nil).Template()
	assert.ErrorContains(t, err, "has no template")
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.toml")
	require.NoError(t, Save(path, "v1 {context} {question}"))

	s := NewStore(path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	got, err := s.Template()
	require.NoError(t, err)
	require.Equal(t, "v1 {context} {question}", got)

	require.NoError(t, Save(path, "v2 {context} {question}"))
	assert.Eventually(t, func() bool {
		got, err := s.Template()
		return err == nil && got == "v2 {context} {question}"
	}, 2*time.Second, 20*time.Millisecond)
}
