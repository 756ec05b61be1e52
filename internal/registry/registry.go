// Package registry maintains the set of file records known to the
// pipeline. The watcher owns the registry: it adds, refreshes, and removes
// records as the filesystem changes, and the generation coordinator takes
// immutable snapshots of the current set at the start of each cycle.
package registry

import (
	"sort"
	"sync"

	"github.com/assetforge/assetforge/internal/types"
)

// FileRegistry is a concurrency-safe set of FileRecords keyed by path.
type FileRegistry struct {
	mu      sync.RWMutex
	records map[string]*types.FileRecord
}

// NewFileRegistry creates an empty registry.
func NewFileRegistry() *FileRegistry {
	return &FileRegistry{records: make(map[string]*types.FileRecord)}
}

// Set adds or refreshes a record. The last write for a path wins, keeping
// the invariant that no two records share a path.
func (r *FileRegistry) Set(record *types.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Path] = record
}

// Remove deletes the record for path and reports whether one existed.
func (r *FileRegistry) Remove(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.records[path]
	delete(r.records, path)
	return existed
}

// Get returns the record for path.
func (r *FileRegistry) Get(path string) (*types.FileRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[path]
	return record, ok
}

// Snapshot returns the current records sorted by path. The slice is owned
// by the caller; the records themselves stay shared and read-only.
func (r *FileRegistry) Snapshot() []*types.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*types.FileRecord, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records
}

// Paths returns the sorted set of known paths.
func (r *FileRegistry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.records))
	for path := range r.records {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of records.
func (r *FileRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
