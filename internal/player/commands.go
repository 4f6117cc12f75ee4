package player

import (
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/playlist"
	"github.com/jscyril/supersonic/internal/state"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"go.uber.org/zap"
)

// Play makes track current, appending it to the queue if needed
func (e *Engine) Play(track api.Track) error {
	if track.ID == "" {
		return playerrors.ErrTrackNotFound
	}
	return e.post(func() {
		e.history.Record(track)
		if e.queue.Add(track) {
			e.publish(api.EventQueueChanged)
		}
		e.load(track, true)
	})
}

// PlayFromList replaces the queue with tracks ordered to start at index
// start and plays that track.
func (e *Engine) PlayFromList(tracks []api.Track, start int) error {
	if start < 0 || start >= len(tracks) {
		return playerrors.ErrTrackNotFound
	}
	list := make([]api.Track, len(tracks))
	copy(list, tracks)
	return e.post(func() {
		ordered := playlist.Rotate(list, start, e.current().Shuffle, e.rng)
		e.queue.Set(ordered)
		e.publish(api.EventQueueChanged)
		e.history.Record(ordered[0])
		e.load(ordered[0], true)
	})
}

// TogglePlay flips play intent. From the error state it always retries,
// since intent usually survives the failure.
func (e *Engine) TogglePlay() error {
	return e.post(func() {
		cur := e.current()
		if cur.Playing && cur.State != api.StateError {
			e.pause()
		} else {
			e.resume()
		}
	})
}

func (e *Engine) Resume() error {
	return e.post(e.resume)
}

func (e *Engine) Pause() error {
	return e.post(e.pause)
}

// Stop unloads the current track and keeps the queue
func (e *Engine) Stop() error {
	return e.post(e.unload)
}

func (e *Engine) Next() error {
	return e.post(e.next)
}

func (e *Engine) Previous() error {
	return e.post(e.previous)
}

func (e *Engine) Seek(position time.Duration) error {
	return e.post(func() { e.seek(position) })
}

// SeekBy moves relative to the live position
func (e *Engine) SeekBy(offset time.Duration) error {
	return e.post(func() {
		cur := e.current()
		if cur.Track == nil {
			return
		}
		e.seek(e.livePosition(cur) + offset)
	})
}

// SetVolume clamps level to 0..100. A running crossfade keeps its ramp;
// the new level applies from the next track.
func (e *Engine) SetVolume(level int) error {
	level = clampVolume(level)
	return e.post(func() {
		e.update(func(s *api.Session) { s.Volume = level })
		if !e.crossfade.Triggered() {
			e.mixer.SetVolume(level)
		}
		e.publish(api.EventStateChange)
	})
}

func (e *Engine) ToggleShuffle() error {
	return e.post(func() {
		e.update(func(s *api.Session) { s.Shuffle = !s.Shuffle })
		e.publish(api.EventStateChange)
	})
}

// CycleRepeat steps through off, all and one
func (e *Engine) CycleRepeat() error {
	return e.post(func() {
		e.update(func(s *api.Session) { s.Repeat = s.Repeat.Next() })
		e.publish(api.EventStateChange)
	})
}

// SetQueue replaces the queue without touching the current track
func (e *Engine) SetQueue(tracks []api.Track) error {
	list := make([]api.Track, len(tracks))
	copy(list, tracks)
	return e.post(func() {
		e.queue.Set(list)
		e.publish(api.EventQueueChanged)
	})
}

// InsertNext queues track right after the current one
func (e *Engine) InsertNext(track api.Track) error {
	return e.post(func() {
		if e.queue.InsertNext(track, e.currentID()) {
			e.publish(api.EventQueueChanged)
		}
	})
}

// Append queues track at the end unless it is already queued
func (e *Engine) Append(track api.Track) error {
	return e.post(func() {
		if e.queue.Add(track) {
			e.publish(api.EventQueueChanged)
		}
	})
}

// Remove drops id from the queue. Removing the current track moves on to
// its successor, or stops when the queue is left empty.
func (e *Engine) Remove(id string) error {
	return e.post(func() {
		current := e.currentID()
		successor, removed := e.queue.Remove(id, current)
		if !removed {
			return
		}
		e.publish(api.EventQueueChanged)
		if id != current {
			return
		}
		if successor == nil {
			e.unload()
			return
		}
		e.history.Record(*successor)
		e.load(*successor, e.current().Playing)
	})
}

// ClearQueue empties the queue and unloads the current track
func (e *Engine) ClearQueue() error {
	return e.post(func() {
		e.queue.Clear()
		e.unload()
		e.publish(api.EventQueueChanged)
	})
}

func (e *Engine) ClearHistory() error {
	return e.post(func() {
		e.history.Clear()
		e.publish(api.EventQueueChanged)
	})
}

// Retry reloads the current track. Queue and history are left alone.
func (e *Engine) Retry() error {
	return e.post(func() {
		cur := e.current()
		if cur.Track == nil {
			e.publishErr(playerrors.ErrNoCurrentTrack)
			return
		}
		e.log.Info("retrying", zap.String("track", cur.Track.ID))
		e.load(*cur.Track, true)
	})
}

// ApplySettings takes effect without a reload: crossfade from the next
// position update, bass and normalize immediately, quality on the next
// load.
func (e *Engine) ApplySettings(s api.Settings) error {
	return e.post(func() { e.applySettings(s) })
}

func (e *Engine) applySettings(s api.Settings) {
	e.settings = s
	e.crossfade.SetWindow(s.Crossfade())
	e.mixer.SetBassBoost(s.BassBoost)
	e.mixer.SetNormalize(s.NormalizeVolume)
}

// Restore loads a persisted snapshot. The current track is not restored.
func (e *Engine) Restore(snap *state.Snapshot) error {
	if snap == nil {
		return nil
	}
	return e.post(func() {
		volume := clampVolume(snap.Volume)
		e.update(func(s *api.Session) {
			s.Volume = volume
			s.Shuffle = snap.Shuffle
			s.Repeat = snap.Repeat
		})
		e.mixer.SetVolume(volume)
		e.queue.Set(snap.Queue)
		e.history.Load(snap.History)
		e.publish(api.EventQueueChanged)
		e.publish(api.EventStateChange)
	})
}

// PersistState captures what survives a restart
func (e *Engine) PersistState() *state.Snapshot {
	s := e.Snapshot()
	return &state.Snapshot{
		Volume:  s.Volume,
		Shuffle: s.Shuffle,
		Repeat:  s.Repeat,
		History: e.history.Latest(playlist.PersistedHistory),
		Queue:   e.queue.GetAll(),
	}
}
