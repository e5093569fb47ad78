package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/shaharia-lab/brewmcp/observability"
	"golang.org/x/sync/errgroup"
)

// FileStore serves the menu from a JSON array of drinks on disk. After Watch
// is called the file is reloaded whenever it changes; a file that fails to
// parse leaves the previous menu in place.
type FileStore struct {
	path   string
	mem    *MemoryStore
	logger observability.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewFileStore loads path. A missing file is created holding the default
// menu.
func NewFileStore(path string, logger observability.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file catalog requires a path")
	}
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}

	s := &FileStore{
		path:   abs,
		mem:    NewMemoryStore(nil),
		logger: logger.WithFields(map[string]interface{}{"catalog": DriverFile, "path": abs}),
	}

	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		if err := WriteFile(abs, DefaultDrinks()); err != nil {
			return nil, err
		}
		s.logger.Info("Created catalog file with the default menu")
	}

	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteFile writes drinks to path in the format FileStore reads.
func WriteFile(path string, drinks []Drink) error {
	data, err := json.MarshalIndent(drinks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal drinks: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}

func (s *FileStore) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var drinks []Drink
	if err := json.Unmarshal(data, &drinks); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}
	for i, d := range drinks {
		if d.Name == "" {
			return fmt.Errorf("catalog file entry %d has no name", i)
		}
	}

	s.mem.Replace(drinks)
	return nil
}

// Watch starts reloading the file on change until ctx ends or Close is
// called. Calling Watch more than once is a no-op.
func (s *FileStore) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so that editors replacing the file by rename are
	// still seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch catalog directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.watch(ctx, w)
	})

	s.watcher = w
	s.cancel = cancel
	s.group = g
	return nil
}

func (s *FileStore) watch(ctx context.Context, w *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.WithErr(err).Warn("Keeping previous menu")
				continue
			}
			s.logger.Debug("Reloaded catalog file")

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.WithErr(err).Warn("File watcher error")
		}
	}
}

func (s *FileStore) List(ctx context.Context) ([]Drink, error) {
	return s.mem.List(ctx)
}

func (s *FileStore) Get(ctx context.Context, name string) (Drink, error) {
	return s.mem.Get(ctx, name)
}

// Close stops the watcher, if running.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}

	s.cancel()
	err := s.watcher.Close()
	if werr := s.group.Wait(); werr != nil && err == nil {
		err = werr
	}
	s.watcher = nil
	return err
}
