package playlist

import (
	"sync"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/samber/lo"
)

const (
	// MaxHistory bounds the in-memory history
	MaxHistory = 100
	// PersistedHistory is how much of it survives a restart
	PersistedHistory = 50
)

// History is a bounded most-recent-first log of played tracks. Playing a
// track again moves it to the front.
type History struct {
	entries []api.HistoryEntry
	now     func() time.Time
	mu      sync.RWMutex
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{now: time.Now}
}

// Record stamps track and puts it first
func (h *History) Record(track api.Track) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rest := lo.Reject(h.entries, func(e api.HistoryEntry, _ int) bool { return e.ID == track.ID })
	entries := make([]api.HistoryEntry, 0, len(rest)+1)
	entries = append(entries, api.HistoryEntry{Track: track, PlayedAt: h.now()})
	entries = append(entries, rest...)
	if len(entries) > MaxHistory {
		entries = entries[:MaxHistory]
	}
	h.entries = entries
}

// Replace updates the stored track with track's id, keeping its timestamp
func (h *History) Replace(track api.Track) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.entries {
		if h.entries[i].ID == track.ID {
			h.entries[i].Track = track
		}
	}
}

// Load replaces the history with entries, most recent first
func (h *History) Load(entries []api.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries = lo.UniqBy(entries, func(e api.HistoryEntry) string { return e.ID })
	if len(entries) > MaxHistory {
		entries = entries[:MaxHistory]
	}
	h.entries = entries
}

// Clear empties the history
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// GetAll returns a copy of the history
func (h *History) GetAll() []api.HistoryEntry {
	return h.Latest(MaxHistory)
}

// Latest returns a copy of at most n entries
func (h *History) Latest(n int) []api.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n = min(n, len(h.entries))
	result := make([]api.HistoryEntry, n)
	copy(result, h.entries[:n])
	return result
}

// Len returns the number of entries
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
