package playlist

import (
	"math/rand"
	"sync"

	"github.com/jscyril/supersonic/api"
	"github.com/samber/lo"
)

// Step describes the outcome of advancing the queue
type Step int

const (
	// StepTrack moves to the returned track
	StepTrack Step = iota
	// StepRestart replays the current track from the start
	StepRestart
	// StepExhausted means a non-repeating queue ran out
	StepExhausted
	// StepStop means there is nothing to play
	StepStop
)

func (s Step) String() string {
	return [...]string{"track", "restart", "exhausted", "stop"}[s]
}

// Queue represents a playback queue. Track ids are unique. The queue keeps
// no cursor: the current position is wherever the current track's id is.
type Queue struct {
	tracks []api.Track
	mu     sync.RWMutex
}

// NewQueue creates a new empty queue
func NewQueue() *Queue {
	return &Queue{
		tracks: make([]api.Track, 0),
	}
}

// Set replaces the entire queue. Later duplicates of an id are dropped.
func (q *Queue) Set(tracks []api.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = lo.UniqBy(tracks, func(t api.Track) string { return t.ID })
}

// Add appends track unless its id is already queued
func (q *Queue) Add(track api.Track) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(track.ID) >= 0 {
		return false
	}
	q.tracks = append(q.tracks, track)
	return true
}

// AddAll appends every track not already queued and returns those added
func (q *Queue) AddAll(tracks []api.Track) []api.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	existing := lo.SliceToMap(q.tracks, func(t api.Track) (string, struct{}) { return t.ID, struct{}{} })
	added := lo.Filter(lo.UniqBy(tracks, func(t api.Track) string { return t.ID }), func(t api.Track, _ int) bool {
		_, dup := existing[t.ID]
		return !dup
	})
	q.tracks = append(q.tracks, added...)
	return added
}

// InsertNext places track right after currentID, or at the front when
// currentID is not queued.
func (q *Queue) InsertNext(track api.Track, currentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(track.ID) >= 0 {
		return false
	}

	at := 0
	if idx := q.indexOf(currentID); idx >= 0 {
		at = idx + 1
	}
	q.tracks = append(q.tracks, api.Track{})
	copy(q.tracks[at+1:], q.tracks[at:])
	q.tracks[at] = track
	return true
}

// Remove drops id from the queue. When id is currentID the entry that
// followed it is returned as the successor, wrapping to the front.
func (q *Queue) Remove(id, currentID string) (successor *api.Track, removed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	q.tracks = append(q.tracks[:idx], q.tracks[idx+1:]...)

	if id == currentID && len(q.tracks) > 0 {
		next := q.tracks[idx%len(q.tracks)]
		return &next, true
	}
	return nil, true
}

// Clear removes all tracks from the queue
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = make([]api.Track, 0)
}

// Replace swaps the entry with track's id for track
func (q *Queue) Replace(track api.Track) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOf(track.ID)
	if idx < 0 {
		return false
	}
	q.tracks[idx] = track
	return true
}

// Contains reports whether id is queued
func (q *Queue) Contains(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.indexOf(id) >= 0
}

// IndexOf returns the position of id, or -1
func (q *Queue) IndexOf(id string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.indexOf(id)
}

func (q *Queue) indexOf(id string) int {
	if id == "" {
		return -1
	}
	_, idx, ok := lo.FindIndexOf(q.tracks, func(t api.Track) bool { return t.ID == id })
	if !ok {
		return -1
	}
	return idx
}

// NextFrom picks what follows currentID. With shuffle it picks uniformly
// among every other entry; otherwise it takes the next index.
func (q *Queue) NextFrom(currentID string, shuffle bool, repeat api.RepeatMode, rng *rand.Rand) (api.Track, Step) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.tracks) == 0 {
		return api.Track{}, StepStop
	}
	idx := q.indexOf(currentID)

	if shuffle {
		others := lo.Filter(q.tracks, func(t api.Track, _ int) bool { return t.ID != currentID })
		if len(others) == 0 {
			if repeat != api.RepeatOff {
				return api.Track{}, StepRestart
			}
			return api.Track{}, StepExhausted
		}
		return others[rng.Intn(len(others))], StepTrack
	}

	next := idx + 1
	if next >= len(q.tracks) {
		switch repeat {
		case api.RepeatAll:
			next = 0
		case api.RepeatOne:
			return api.Track{}, StepRestart
		default:
			return api.Track{}, StepExhausted
		}
	}
	return q.tracks[next], StepTrack
}

// PrevFrom returns the entry before currentID, wrapping to the end
func (q *Queue) PrevFrom(currentID string) (api.Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.tracks) == 0 {
		return api.Track{}, false
	}
	prev := q.indexOf(currentID) - 1
	if prev < 0 {
		prev = len(q.tracks) - 1
	}
	return q.tracks[prev], true
}

// Upcoming returns up to n entries after currentID, without wrapping
func (q *Queue) Upcoming(currentID string, n int) []api.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	idx := q.indexOf(currentID)
	if idx < 0 {
		return nil
	}
	end := min(idx+1+n, len(q.tracks))
	result := make([]api.Track, end-idx-1)
	copy(result, q.tracks[idx+1:end])
	return result
}

// GetAll returns a copy of all tracks in the queue
func (q *Queue) GetAll() []api.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]api.Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// Len returns the number of tracks in the queue
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// Rotate orders tracks for playing from start: with shuffle the start track
// leads and the rest is shuffled, otherwise the list is rotated so start
// comes first.
func Rotate(tracks []api.Track, start int, shuffle bool, rng *rand.Rand) []api.Track {
	if start < 0 || start >= len(tracks) {
		return nil
	}
	if shuffle {
		rest := make([]api.Track, 0, len(tracks)-1)
		rest = append(rest, tracks[:start]...)
		rest = append(rest, tracks[start+1:]...)
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		return append([]api.Track{tracks[start]}, rest...)
	}
	out := make([]api.Track, 0, len(tracks))
	out = append(out, tracks[start:]...)
	return append(out, tracks[:start]...)
}
