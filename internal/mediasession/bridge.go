package mediasession

import (
	"context"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/pkg/events"
	"go.uber.org/zap"
)

// DefaultSeekOffset applies when a seek action carries no offset
const DefaultSeekOffset = 10 * time.Second

// Metadata describes the now-playing item
type Metadata struct {
	TrackID    string
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
	Length     time.Duration
}

// PlaybackState is the OS-level play state
type PlaybackState string

const (
	StateNone    PlaybackState = "none"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// PositionState feeds the OS seek bar
type PositionState struct {
	Duration time.Duration
	Position time.Duration
	Rate     float64
}

// Action is an OS-originated command
type Action string

const (
	ActionPlay          Action = "play"
	ActionPause         Action = "pause"
	ActionNextTrack     Action = "nexttrack"
	ActionPreviousTrack Action = "previoustrack"
	ActionSeekTo        Action = "seekto"
	ActionSeekForward   Action = "seekforward"
	ActionSeekBackward  Action = "seekbackward"
	ActionStop          Action = "stop"
)

// ActionDetails carries the arguments of seek actions
type ActionDetails struct {
	SeekTime   time.Duration
	SeekOffset time.Duration
}

// Handler receives inbound actions
type Handler func(Action, ActionDetails)

// Integration is an OS "now playing" surface
type Integration interface {
	SetMetadata(Metadata) error
	SetPlaybackState(PlaybackState) error
	SetPositionState(PositionState) error
	SetHandler(Handler)
	Close() error
}

// Controls are the engine operations actions map onto
type Controls interface {
	Resume() error
	Pause() error
	Next() error
	Previous() error
	Seek(position time.Duration) error
	SeekBy(offset time.Duration) error
}

// Bridge mirrors engine events to an Integration and forwards its actions
// back to the engine. It holds no playback logic of its own.
type Bridge struct {
	os       Integration
	controls Controls
	log      *zap.Logger

	lastTrackID string
	lastLength  time.Duration
	lastState   PlaybackState
}

func NewBridge(integration Integration, controls Controls, log *zap.Logger) *Bridge {
	b := &Bridge{
		os:       integration,
		controls: controls,
		log:      log.Named("mediasession"),
	}
	integration.SetHandler(b.Handle)
	return b
}

// Run consumes events until the subscription closes or ctx ends
func (b *Bridge) Run(ctx context.Context, sub *events.Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			b.Sync(ev.Session)
		}
	}
}

// Sync publishes whatever changed in s. Metadata goes out again when the
// decoded length replaces the declared one.
func (b *Bridge) Sync(s api.Session) {
	if s.Track != nil && (s.Track.ID != b.lastTrackID || s.Duration != b.lastLength) {
		b.lastTrackID = s.Track.ID
		b.lastLength = s.Duration
		if err := b.os.SetMetadata(MetadataFor(*s.Track, s.Duration)); err != nil {
			b.log.Warn("failed to publish metadata", zap.Error(err))
		}
	}

	state := StateNone
	if s.Track != nil {
		state = StatePaused
		if s.Playing {
			state = StatePlaying
		}
	} else {
		b.lastTrackID = ""
		b.lastLength = 0
	}
	if state != b.lastState {
		b.lastState = state
		if err := b.os.SetPlaybackState(state); err != nil {
			b.log.Warn("failed to publish playback state", zap.Error(err))
		}
	}

	if s.Track != nil && s.Duration > 0 {
		pos := PositionState{
			Duration: s.Duration,
			Position: min(max(s.Position, 0), s.Duration),
			Rate:     1,
		}
		if err := b.os.SetPositionState(pos); err != nil {
			b.log.Debug("failed to publish position", zap.Error(err))
		}
	}
}

// Handle forwards an inbound action to the engine
func (b *Bridge) Handle(action Action, details ActionDetails) {
	var err error
	switch action {
	case ActionPlay:
		err = b.controls.Resume()
	case ActionPause, ActionStop:
		err = b.controls.Pause()
	case ActionNextTrack:
		err = b.controls.Next()
	case ActionPreviousTrack:
		err = b.controls.Previous()
	case ActionSeekTo:
		err = b.controls.Seek(details.SeekTime)
	case ActionSeekForward:
		err = b.controls.SeekBy(seekOffset(details))
	case ActionSeekBackward:
		err = b.controls.SeekBy(-seekOffset(details))
	default:
		b.log.Debug("ignoring unknown action", zap.String("action", string(action)))
		return
	}
	if err != nil {
		b.log.Warn("media action failed", zap.String("action", string(action)), zap.Error(err))
	}
}

func seekOffset(d ActionDetails) time.Duration {
	if d.SeekOffset > 0 {
		return d.SeekOffset
	}
	return DefaultSeekOffset
}

// MetadataFor builds the now-playing description of track
func MetadataFor(track api.Track, length time.Duration) Metadata {
	album := track.Album
	if album == "" {
		album = DefaultAlbum
	}
	if length <= 0 {
		length = track.Length()
	}
	return Metadata{
		TrackID:    track.ID,
		Title:      track.Title,
		Artist:     track.Artist,
		Album:      album,
		ArtworkURL: ArtworkURL(track.Thumbnail, track.ID),
		Length:     length,
	}
}

// Nop is an Integration that publishes nothing
type Nop struct{}

func (Nop) SetMetadata(Metadata) error           { return nil }
func (Nop) SetPlaybackState(PlaybackState) error { return nil }
func (Nop) SetPositionState(PositionState) error { return nil }
func (Nop) SetHandler(Handler)                   {}
func (Nop) Close() error                         { return nil }
