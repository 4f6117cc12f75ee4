package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jscyril/supersonic/api"
)

// Registry is the persisted index of completed downloads
type Registry struct {
	path    string
	records map[string]api.Download
	mu      sync.RWMutex
}

// LoadRegistry reads the registry at path. A missing file yields an empty registry.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, records: make(map[string]api.Download)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read download registry: %w", err)
	}

	var records []api.Download
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse download registry: %w", err)
	}
	for _, rec := range records {
		r.records[rec.Track.ID] = rec
	}
	return r, nil
}

// Save writes the registry back to disk
func (r *Registry) Save() error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal download registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	return os.WriteFile(r.path, data, 0644)
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

func (r *Registry) Get(id string) (api.Download, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

func (r *Registry) Put(rec api.Download) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Track.ID] = rec
}

// Delete removes id and returns the size it occupied.
func (r *Registry) Delete(id string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return 0
	}
	delete(r.records, id)
	return rec.Size
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]api.Download)
}

// All returns every record, newest first.
func (r *Registry) All() []api.Download {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.Download, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DownloadedAt.After(out[j].DownloadedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// TotalBytes is the storage used by all recorded downloads.
func (r *Registry) TotalBytes() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, rec := range r.records {
		total += rec.Size
	}
	return total
}
