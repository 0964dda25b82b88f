// Package prompts loads the prompt template from a user-editable TOML file,
// falling back to the built-in template when no file exists.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"groundrag/internal/grounding"
)

// File is the on-disk shape of a prompt file:
//
//	template = """
//	Answer from this context only:
//	{context}
//	Question: {question}
//	"""
type File struct {
	Template string `toml:"template"`
}

// Store caches the template until Reload or a watched change clears it.
// A malformed file is reported on every Template call until it is fixed.
type Store struct {
	mu     sync.RWMutex
	path   string
	cached *string
	log    *zap.Logger
}

// NewStore creates a store for path. An empty path always yields the default template.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

// Path returns the prompt file path.
func (s *Store) Path() string { return s.path }

// Template returns the current template.
func (s *Store) Template() (string, error) {
	s.mu.RLock()
	if s.cached != nil {
		t := *s.cached
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	t, err := s.load()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.cached = &t
	s.mu.Unlock()
	return t, nil
}

// Reload clears the cache, forcing a fresh read on next access.
func (s *Store) Reload() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) load() (string, error) {
	if s.path == "" {
		return grounding.DefaultTemplate, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return grounding.DefaultTemplate, nil
		}
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse prompt file %s: %w", s.path, err)
	}
	if f.Template == "" {
		return "", fmt.Errorf("prompt file %s has no template", s.path)
	}
	return f.Template, nil
}

// Save writes template to path in the store's format.
func Save(path, template string) error {
	data, err := toml.Marshal(File{Template: template})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Watch reloads the template whenever the prompt file changes, until ctx is
// done. The parent directory is watched because editors often replace files
// instead of writing them in place.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					s.Reload()
					s.log.Info("prompt template reloaded", zap.String("path", s.path), zap.String("op", ev.Op.String()))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("prompt watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
