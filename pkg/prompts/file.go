package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout:
//
//	prompts:
//	  synthesis:
//	    default: "..."
//	    de: "..."
type fileFormat struct {
	Prompts Set `json:"prompts" yaml:"prompts"`
}

// FileSource serves templates from a YAML or JSON file, falling back to the
// built-in defaults for names the file does not define.
type FileSource struct {
	path     string
	fallback Set
	logger   *slog.Logger

	mu  sync.RWMutex
	set Set
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithLogger configures a logger for reload events.
func WithLogger(logger *slog.Logger) FileOption {
	return func(s *FileSource) {
		s.logger = logger
	}
}

// WithFallback replaces the built-in defaults used for missing names.
func WithFallback(set Set) FileOption {
	return func(s *FileSource) {
		s.fallback = set
	}
}

// NewFileSource loads path. The format follows the file extension (.json, otherwise YAML).
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	s := &FileSource{
		path:     path,
		fallback: Defaults(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load (re)reads the file. On error the previous templates stay in place.
func (s *FileSource) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read prompts file: %w", err)
	}

	var f fileFormat
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return fmt.Errorf("failed to parse prompts file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.set = f.Prompts
	s.mu.Unlock()
	return nil
}

// Prompt implements ports.PromptSource.
func (s *FileSource) Prompt(name, lang string) (string, bool) {
	s.mu.RLock()
	set := s.set
	s.mu.RUnlock()

	if t, ok := set.Lookup(name, lang); ok {
		return t, true
	}
	return s.fallback.Lookup(name, lang)
}

// Watch reloads the file whenever it is written, until ctx is done.
// The parent directory is watched so editors that replace the file are seen too.
func (s *FileSource) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.Load(); err != nil {
				s.logger.Warn("Prompt reload failed", "path", s.path, "err", err)
				continue
			}
			s.logger.Info("Prompts reloaded", "path", s.path)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Prompt watcher error", "err", err)
		}
	}
}
