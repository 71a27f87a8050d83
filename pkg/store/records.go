package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"douyindl/pkg/logger"
)

// Scope names one crawl surface whose seen-set is tracked separately.
// The same item id may appear under several scopes (a post that is also
// in a collection) without the records interfering.
type Scope struct {
	// Kind is the surface: user_post, user_like, mix, music
	Kind string
	// ID is the resource identifier the surface belongs to
	ID string
}

// Key returns the stable map key for the scope
func (s Scope) Key() string {
	return s.Kind + ":" + s.ID
}

// Store tracks which item ids have been archived per scope
type Store interface {
	// Seen reports whether the item was recorded under the scope
	Seen(scope Scope, itemID string) bool
	// Put records the item under the scope and persists the change
	Put(scope Scope, itemID string) error
	// Count returns how many items the scope has recorded
	Count(scope Scope) int
	// Close flushes any pending state
	Close() error
}

// records is the on-disk shape: scope key -> item id -> first seen unix
type records map[string]map[string]int64

// FileStore persists records as a single JSON file. Every Put rewrites
// the file atomically (tmp file, fsync, rename) so a crash never leaves
// a torn record set behind.
type FileStore struct {
	path   string
	mu     sync.Mutex
	data   records
	logger logger.Logger
}

// Open loads or creates a record store at path
func Open(path string, log logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	fs := &FileStore{
		path:   path,
		data:   make(records),
		logger: log,
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil // Fresh store
		}
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&fs.data); err != nil {
		return nil, fmt.Errorf("failed to decode record store %s: %w", path, err)
	}

	total := 0
	for _, scope := range fs.data {
		total += len(scope)
	}
	log.InfoWithFields("record store loaded", map[string]interface{}{
		"path":    path,
		"scopes":  len(fs.data),
		"records": total,
	})

	return fs, nil
}

// Seen reports whether the item was recorded under the scope
func (fs *FileStore) Seen(scope Scope, itemID string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ids, ok := fs.data[scope.Key()]
	if !ok {
		return false
	}
	_, seen := ids[itemID]
	return seen
}

// Put records the item under the scope and persists the change. Putting
// an already-recorded item is a no-op.
func (fs *FileStore) Put(scope Scope, itemID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	key := scope.Key()
	ids, ok := fs.data[key]
	if !ok {
		ids = make(map[string]int64)
		fs.data[key] = ids
	}
	if _, exists := ids[itemID]; exists {
		return nil
	}
	ids[itemID] = time.Now().Unix()

	if err := fs.saveLocked(); err != nil {
		// Roll back so a later retry persists it again
		delete(ids, itemID)
		return err
	}
	return nil
}

// Count returns how many items the scope has recorded
func (fs *FileStore) Count(scope Scope) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.data[scope.Key()])
}

// Close flushes the store to disk
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.saveLocked()
}

// saveLocked writes the record set atomically. Callers hold fs.mu.
func (fs *FileStore) saveLocked() error {
	tempPath := fs.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fs.data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode record store: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync record store: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close record store: %w", err)
	}

	if err := os.Rename(tempPath, fs.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace record store: %w", err)
	}

	return nil
}

// Discard is a store that records nothing. Used when the record store
// is disabled: every item looks new and nothing persists.
type Discard struct{}

func (Discard) Seen(Scope, string) bool  { return false }
func (Discard) Put(Scope, string) error  { return nil }
func (Discard) Count(Scope) int          { return 0 }
func (Discard) Close() error             { return nil }
