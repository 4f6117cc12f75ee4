package player

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/audio"
	"github.com/jscyril/supersonic/internal/playlist"
	"github.com/jscyril/supersonic/internal/prefetch"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"go.uber.org/zap"
)

// load supersedes whatever is loading or playing with track. Every async
// continuation carries the generation it was started for and is dropped
// once a newer load exists.
func (e *Engine) load(track api.Track, intent bool) {
	e.cancelLoad()
	e.output.Unload()

	e.gen++
	gen := e.gen
	loadID := uuid.NewString()
	ctx, cancel := context.WithCancel(e.ctx)
	e.loadCancel = cancel
	e.pendingPlay = nil
	e.pauseDeferred = false

	e.crossfade.Reset(track.ID)
	e.mixer.RestoreGain(e.current().Volume)

	t := track
	e.update(func(s *api.Session) {
		s.Track = &t
		s.State = api.StateLoading
		s.Playing = intent
		s.Buffering = true
		s.Position = 0
		s.Duration = track.Length()
		s.Quality = track.Quality
		s.Error = nil
	})
	e.publish(api.EventTrackChanged)
	e.publish(api.EventStateChange)

	e.prefetch.Schedule(func() []api.Track {
		return e.queue.Upcoming(track.ID, prefetch.Lookahead)
	})

	quality := e.settings.QualityTier()
	log := e.log.With(zap.String("track", track.ID), zap.String("load_id", loadID))
	log.Debug("loading", zap.String("quality", quality), zap.Uint64("gen", gen))

	e.goAsync(func() {
		defer cancel()

		src, err := e.resolver.Resolve(ctx, track.ID, quality)
		if ctx.Err() != nil {
			log.Debug("resolution superseded")
			return
		}
		if err != nil {
			e.post(func() { e.loadFailed(gen, err) })
			return
		}
		e.post(func() { e.resolved(gen, src) })

		dur, err := e.loadSource(ctx, gen, src)
		if err != nil && src.Offline && ctx.Err() == nil {
			// A download that won't play is skipped for this load only.
			log.Warn("offline copy failed to load, streaming instead", zap.Error(err))
			var remote *api.Source
			remote, err = e.resolver.Network(ctx, track.ID, quality)
			if ctx.Err() != nil {
				log.Debug("resolution superseded")
				return
			}
			if err == nil {
				e.post(func() { e.resolved(gen, remote) })
				dur, err = e.loadSource(ctx, gen, remote)
			}
		}
		if ctx.Err() != nil && err != nil {
			log.Debug("load superseded", zap.Error(err))
			return
		}
		if err != nil {
			e.post(func() { e.loadFailed(gen, err) })
			return
		}
		e.post(func() { e.loaded(gen, dur) })
	})
}

// loadSource hands src to the output, bounded by the load timeout.
func (e *Engine) loadSource(ctx context.Context, gen uint64, src *api.Source) (time.Duration, error) {
	lctx, cancel := context.WithTimeout(ctx, e.loadTimeout)
	defer cancel()
	dur, err := e.output.Load(lctx, gen, src)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = playerrors.NewPlayerError("load", src.TrackID, playerrors.ErrLoadTimeout)
	}
	return dur, err
}

func (e *Engine) cancelLoad() {
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
}

// resolved attaches the stream's quality to the current track, replacing
// it in the queue and history with the annotated copy.
func (e *Engine) resolved(gen uint64, src *api.Source) {
	if gen != e.gen {
		return
	}
	cur := e.current()
	if cur.Track == nil {
		return
	}
	updated := cur.Track.WithQuality(src.Quality)
	q := src.Quality
	e.update(func(s *api.Session) {
		s.Track = &updated
		s.Quality = &q
	})
	e.queue.Replace(updated)
	e.history.Replace(updated)
	e.publish(api.EventStateChange)
	e.publish(api.EventQueueChanged)
}

func (e *Engine) loaded(gen uint64, dur time.Duration) {
	if gen != e.gen {
		return
	}
	e.loadCancel = nil

	id := e.currentID()
	if dur > 0 {
		e.crossfade.Reset(id)
	}
	e.update(func(s *api.Session) {
		if dur > 0 {
			s.Duration = dur
		}
		s.State = api.StateReady
		s.Buffering = false
	})
	e.publish(api.EventStateChange)

	if e.current().Playing {
		e.startPlayback()
	}
}

func (e *Engine) loadFailed(gen uint64, err error) {
	if gen != e.gen {
		return
	}
	e.loadCancel = nil
	e.fail(err)
}

// fail puts the engine into the retryable error state. Aborted plays are
// expected and never surface.
func (e *Engine) fail(err error) {
	if playerrors.IsAborted(err) {
		e.log.Debug("play aborted", zap.Error(err))
		return
	}
	kind := playerrors.Classify(err)
	e.log.Warn("playback failed",
		zap.String("track", e.currentID()),
		zap.String("kind", string(kind)),
		zap.Error(err))

	e.pendingPlay = nil
	e.pauseDeferred = false
	e.update(func(s *api.Session) {
		s.State = api.StateError
		s.Buffering = false
		s.Error = &api.SessionError{Kind: kind, Message: err.Error()}
	})
	e.publishErr(err)
	e.publish(api.EventStateChange)
}

// startPlayback asks the output to play and tracks the request until it
// settles, so a pause never lands in the middle of it.
func (e *Engine) startPlayback() {
	if e.pendingPlay != nil {
		e.pauseDeferred = false
		return
	}
	gen := e.gen
	ch := e.output.Play()
	e.pendingPlay = ch
	e.goAsync(func() {
		var err error
		select {
		case err = <-ch:
		case <-e.ctx.Done():
			return
		}
		e.post(func() { e.playSettled(gen, ch, err) })
	})
}

func (e *Engine) playSettled(gen uint64, ch <-chan error, err error) {
	if e.pendingPlay == ch {
		e.pendingPlay = nil
	}
	if gen != e.gen {
		return
	}
	if err != nil {
		e.fail(err)
		return
	}

	if e.pauseDeferred {
		e.pauseDeferred = false
		if !e.current().Playing {
			e.output.Pause()
			e.update(func(s *api.Session) { s.State = api.StatePaused })
			e.publish(api.EventStateChange)
			return
		}
	}

	e.update(func(s *api.Session) {
		s.State = api.StatePlaying
		s.Error = nil
	})
	e.publish(api.EventStateChange)

	if e.reported != gen {
		e.reported = gen
		e.reportPlay()
	}
}

func (e *Engine) reportPlay() {
	cur := e.current()
	if cur.Track == nil {
		return
	}
	track := *cur.Track
	e.goAsync(func() {
		ctx, cancel := context.WithTimeout(e.ctx, trackPlayTimeout)
		defer cancel()
		if err := e.backend.TrackPlay(ctx, track); err != nil {
			e.log.Warn("track play report failed", zap.String("track", track.ID), zap.Error(err))
		}
	})
}

// pause drops play-intent. A play request still in flight is allowed to
// settle first.
func (e *Engine) pause() {
	cur := e.current()
	if cur.Track == nil {
		return
	}
	e.update(func(s *api.Session) { s.Playing = false })

	switch {
	case e.pendingPlay != nil:
		e.pauseDeferred = true
	case cur.State == api.StatePlaying:
		e.output.Pause()
		e.update(func(s *api.Session) { s.State = api.StatePaused })
	}
	e.publish(api.EventStateChange)
}

func (e *Engine) resume() {
	cur := e.current()
	if cur.Track == nil {
		return
	}
	if cur.State == api.StateError {
		e.load(*cur.Track, true)
		return
	}

	e.update(func(s *api.Session) { s.Playing = true })
	switch cur.State {
	case api.StateReady, api.StatePaused:
		e.startPlayback()
	case api.StateEnded:
		e.restart()
		return
	}
	e.publish(api.EventStateChange)
}

// restart plays the current track again from zero
func (e *Engine) restart() {
	if err := e.output.Seek(0); err != nil {
		e.log.Debug("restart seek failed, reloading", zap.Error(err))
		if cur := e.current(); cur.Track != nil {
			e.load(*cur.Track, true)
		}
		return
	}
	e.crossfade.Reset(e.currentID())
	e.mixer.RestoreGain(e.current().Volume)
	e.update(func(s *api.Session) {
		s.Position = 0
		s.Playing = true
	})
	e.startPlayback()
	e.publish(api.EventPositionUpdate)
	e.publish(api.EventStateChange)
}

// stopIntent ends playback without erroring: intent goes false and the
// output pauses where it is.
func (e *Engine) stopIntent() {
	cur := e.current()
	e.update(func(s *api.Session) { s.Playing = false })
	switch {
	case e.pendingPlay != nil:
		e.pauseDeferred = true
	case cur.State == api.StatePlaying:
		e.output.Pause()
		e.update(func(s *api.Session) { s.State = api.StatePaused })
	}
	if e.crossfade.Triggered() {
		e.crossfade.Reset(e.currentID())
		e.mixer.RestoreGain(cur.Volume)
	}
	e.publish(api.EventStateChange)
}

// unload drops the current track entirely
func (e *Engine) unload() {
	e.cancelLoad()
	e.gen++
	e.output.Unload()
	e.crossfade.Reset("")
	e.prefetch.Cancel()
	e.pendingPlay = nil
	e.pauseDeferred = false
	e.update(func(s *api.Session) {
		s.Track = nil
		s.State = api.StateIdle
		s.Playing = false
		s.Buffering = false
		s.Position = 0
		s.Duration = 0
		s.Quality = nil
		s.Error = nil
	})
	e.publish(api.EventTrackChanged)
	e.publish(api.EventStateChange)
}

func (e *Engine) onSignal(sig audio.Signal) {
	if sig.Gen != e.gen {
		return
	}
	switch sig.Kind {
	case audio.SignalWaiting:
		e.update(func(s *api.Session) { s.Buffering = true })
		e.publish(api.EventBuffering)
	case audio.SignalCanPlay:
		if !e.current().Buffering {
			return
		}
		e.update(func(s *api.Session) { s.Buffering = false })
		e.publish(api.EventBuffering)
	case audio.SignalEnded:
		e.ended()
	case audio.SignalError:
		e.fail(sig.Err)
	}
}

// ended handles the natural end of the current track
func (e *Engine) ended() {
	if e.crossfade.Triggered() {
		e.log.Debug("natural end after crossfade, ignoring", zap.String("track", e.currentID()))
		return
	}
	cur := e.current()
	e.update(func(s *api.Session) {
		s.Position = s.Duration
		s.Buffering = false
	})
	e.publish(api.EventTrackEnded)

	if cur.Repeat == api.RepeatOne {
		e.restart()
		return
	}
	e.update(func(s *api.Session) { s.State = api.StateEnded })
	e.next()
}

// tick samples the output clock and drives the crossfade and the
// position observers.
func (e *Engine) tick() {
	cur := e.current()
	if cur.Track == nil || cur.State != api.StatePlaying {
		return
	}
	pos := e.output.Position()
	if cur.Duration > 0 {
		pos = min(pos, cur.Duration)
	}
	e.update(func(s *api.Session) { s.Position = pos })
	e.publish(api.EventPositionUpdate)

	e.crossfade.Observe(cur.Track.ID, pos, cur.Duration, cur.Repeat)
}

// crossfadeAdvance runs on the scheduler once a fade is about to finish
func (e *Engine) crossfadeAdvance(trackID string) {
	e.post(func() {
		if e.currentID() != trackID {
			return
		}
		e.next()
	})
}

// next advances past the current track
func (e *Engine) next() {
	cur := e.current()
	if cur.Track == nil {
		return
	}
	track, step := e.queue.NextFrom(cur.Track.ID, cur.Shuffle, cur.Repeat, e.rng)
	switch step {
	case playlist.StepTrack:
		e.history.Record(track)
		e.load(track, true)
	case playlist.StepRestart:
		e.restart()
	case playlist.StepExhausted:
		e.extend(cur.Track.ID)
	default:
		e.stopIntent()
	}
}

// extend grows an exhausted queue with related tracks and continues into
// the first new one. Any failure just stops playback.
func (e *Engine) extend(seedID string) {
	if !e.settings.AutoPlay || e.autoplayBusy {
		e.stopIntent()
		return
	}
	e.autoplayBusy = true

	e.goAsync(func() {
		ctx, cancel := context.WithTimeout(e.ctx, autoplayTimeout)
		defer cancel()
		tracks, err := e.backend.AutoplayQueue(ctx, seedID, AutoplayCount)
		e.post(func() { e.extended(seedID, tracks, err) })
	})
}

func (e *Engine) extended(seedID string, tracks []api.Track, err error) {
	e.autoplayBusy = false
	if err != nil {
		e.log.Warn("autoplay failed", zap.String("seed", seedID), zap.Error(err))
	}

	added := e.queue.AddAll(tracks)
	if len(added) > 0 {
		e.publish(api.EventQueueChanged)
	}
	if e.currentID() != seedID {
		return
	}
	if len(added) == 0 {
		e.log.Info("autoplay found nothing new, stopping", zap.String("seed", seedID))
		e.stopIntent()
		return
	}
	e.history.Record(added[0])
	e.load(added[0], true)
}

func (e *Engine) previous() {
	cur := e.current()
	if cur.Track == nil {
		return
	}
	if e.livePosition(cur) > RestartThreshold {
		e.seek(0)
		return
	}
	track, ok := e.queue.PrevFrom(cur.Track.ID)
	if !ok {
		e.seek(0)
		return
	}
	e.history.Record(track)
	e.load(track, true)
}

// livePosition reads the output clock when it is meaningful
func (e *Engine) livePosition(cur api.Session) time.Duration {
	switch cur.State {
	case api.StatePlaying, api.StatePaused, api.StateReady, api.StateEnded:
		return e.output.Position()
	}
	return cur.Position
}

func (e *Engine) seek(pos time.Duration) {
	cur := e.current()
	if cur.Track == nil {
		return
	}
	switch cur.State {
	case api.StateIdle, api.StateLoading, api.StateError:
		return
	}
	pos = max(pos, 0)
	if cur.Duration > 0 {
		pos = min(pos, cur.Duration)
	}

	if err := e.output.Seek(pos); err != nil {
		e.log.Info("seek failed", zap.Duration("position", pos), zap.Error(err))
		e.publishErr(err)
		return
	}
	if e.crossfade.Triggered() {
		e.mixer.RestoreGain(cur.Volume)
	}
	e.crossfade.Reset(cur.Track.ID)

	e.update(func(s *api.Session) { s.Position = pos })
	if cur.State == api.StateEnded && cur.Playing {
		e.startPlayback()
	}
	e.publish(api.EventPositionUpdate)
}
