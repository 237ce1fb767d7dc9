package category

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 250 * time.Millisecond

// Registry holds the active category table and swaps it on reload.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	table *Table
}

// NewRegistry creates a registry serving t.
func NewRegistry(t *Table) *Registry {
	if t == nil {
		t = Default()
	}
	return &Registry{table: t}
}

// LoadFile reads and parses a YAML category table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return Parse(data)
}

// Table returns the current table.
func (r *Registry) Table() *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table
}

// Replace swaps the current table.
func (r *Registry) Replace(t *Table) {
	r.mu.Lock()
	r.table = t
	r.mu.Unlock()
}

func (r *Registry) Categories() []Category { return r.Table().Categories() }
func (r *Registry) Has(key string) bool { return r.Table().Has(key) }
func (r *Registry) Label(key string) string { return r.Table().Label(key) }
func (r *Registry) Subcategories(key string) []string { return r.Table().Subcategories(key) }
func (r *Registry) RequiresCustomInput(key string) bool { return r.Table().RequiresCustomInput(key) }

// Resolve resolves against the current table.
func (r *Registry) Resolve(boxCategory, selection, custom string) (string, error) {
	return r.Table().Resolve(boxCategory, selection, custom)
}

// Watch reloads the table whenever path changes, until ctx is cancelled.
// A file that fails to parse is logged and the previous table kept.
func (r *Registry) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	logger = logger.With("component", "category.watcher", "path", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("category watcher error", "error", err)
		case <-pending:
			pending = nil
			t, err := LoadFile(path)
			if err != nil {
				logger.Error("category reload failed, keeping previous table", "error", err)
				continue
			}
			r.Replace(t)
			logger.Info("category table reloaded", "categories", len(t.categories))
		}
	}
}
