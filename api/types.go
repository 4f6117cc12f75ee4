package api

import (
	"fmt"
	"strings"
	"time"
)

// FormatOffline marks a source served from the download store.
const FormatOffline = "OFFLINE"

type Track struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Artist          string        `json:"artist"`
	ArtistID        string        `json:"artistId,omitempty"`
	Thumbnail       string        `json:"thumbnail"`
	Duration        string        `json:"duration"`
	DurationSeconds float64       `json:"durationSeconds"`
	Quality         *AudioQuality `json:"quality,omitempty"`
	Album           string        `json:"album,omitempty"`
	AlbumID         string        `json:"albumId,omitempty"`
}

// Length returns the declared duration of the track.
func (t Track) Length() time.Duration {
	return time.Duration(t.DurationSeconds * float64(time.Second))
}

// WithQuality returns a copy of the track carrying q. The receiver is left untouched.
func (t Track) WithQuality(q AudioQuality) Track {
	t.Quality = &q
	return t
}

type AudioQuality struct {
	Format       string `json:"format"`
	BitrateKbps  int    `json:"bitrate"`
	SampleRateHz int    `json:"hz"`
}

func (q AudioQuality) String() string {
	if q.Format == FormatOffline {
		return "offline"
	}
	return fmt.Sprintf("%s %dkbps %.1fkHz", strings.ToLower(q.Format), q.BitrateKbps, float64(q.SampleRateHz)/1000)
}

type HistoryEntry struct {
	Track
	PlayedAt time.Time `json:"playedAt"`
}

// RepeatMode controls what happens at the end of a track or the queue
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (r RepeatMode) String() string {
	switch r {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "off"
	}
}

// Next returns the mode that follows r in the off, all, one cycle.
func (r RepeatMode) Next() RepeatMode {
	return (r + 1) % 3
}

func (r RepeatMode) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RepeatMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "off", "":
		*r = RepeatOff
	case "all":
		*r = RepeatAll
	case "one":
		*r = RepeatOne
	default:
		return fmt.Errorf("unknown repeat mode %q", b)
	}
	return nil
}

// EngineState is the phase of the current track's load/play cycle
type EngineState int

const (
	StateIdle EngineState = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

func (s EngineState) String() string {
	return [...]string{"idle", "loading", "ready", "playing", "paused", "ended", "error"}[s]
}

type ErrorKind string

const (
	ErrorResolution  ErrorKind = "resolution"
	ErrorLoadTimeout ErrorKind = "load_timeout"
	ErrorMedia       ErrorKind = "media"
	ErrorAborted     ErrorKind = "aborted"
)

type SessionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Session is the observable playback state. Playing is the play-intent;
// Buffering is an overlay that never changes it.
type Session struct {
	Track     *Track        `json:"track,omitempty"`
	State     EngineState   `json:"state"`
	Playing   bool          `json:"playing"`
	Buffering bool          `json:"buffering"`
	Position  time.Duration `json:"position"`
	Duration  time.Duration `json:"duration"`
	Quality   *AudioQuality `json:"quality,omitempty"`
	Volume    int           `json:"volume"`
	Shuffle   bool          `json:"shuffle"`
	Repeat    RepeatMode    `json:"repeat"`
	Error     *SessionError `json:"error,omitempty"`
}

// Clone returns a deep copy so callers can't reach engine-owned memory.
func (s Session) Clone() Session {
	if s.Track != nil {
		t := *s.Track
		if t.Quality != nil {
			q := *t.Quality
			t.Quality = &q
		}
		s.Track = &t
	}
	if s.Quality != nil {
		q := *s.Quality
		s.Quality = &q
	}
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	return s
}

// Source is a resolved, playable audio source for one track.
type Source struct {
	TrackID  string
	URL      string
	MimeType string
	Offline  bool
	Blob     []byte
	Quality  AudioQuality
}

type EventType int

const (
	EventStateChange EventType = iota
	EventTrackChanged
	EventPositionUpdate
	EventBuffering
	EventError
	EventQueueChanged
	EventTrackEnded
)

// AllEventTypes lists every event the engine publishes.
var AllEventTypes = []EventType{
	EventStateChange,
	EventTrackChanged,
	EventPositionUpdate,
	EventBuffering,
	EventError,
	EventQueueChanged,
	EventTrackEnded,
}

// Event carries a session snapshot taken when the event was published.
type Event struct {
	Type    EventType
	Session Session
	Err     error
}

// Settings are the user preferences the engine consumes reactively.
type Settings struct {
	AudioQuality           string  `json:"audio_quality" yaml:"audio_quality"`
	DataSaver              bool    `json:"data_saver" yaml:"data_saver"`
	CrossfadeSeconds       float64 `json:"crossfade" yaml:"crossfade"`
	NormalizeVolume        bool    `json:"normalize_volume" yaml:"normalize_volume"`
	BassBoost              int     `json:"bass_boost" yaml:"bass_boost"`
	AutoPlay               bool    `json:"autoplay" yaml:"autoplay"`
	DownloadStorageLimitMB int     `json:"download_storage_limit_mb" yaml:"download_storage_limit_mb"`
}

// QualityTier is the quality parameter sent to the extraction endpoint.
func (s Settings) QualityTier() string {
	if s.DataSaver {
		return "low"
	}
	if s.AudioQuality == "" {
		return "high"
	}
	return s.AudioQuality
}

// Crossfade returns the crossfade window as a duration.
func (s Settings) Crossfade() time.Duration {
	return time.Duration(s.CrossfadeSeconds * float64(time.Second))
}

type Download struct {
	Track        Track     `json:"track"`
	DownloadedAt time.Time `json:"downloadedAt"`
	Size         int64     `json:"size"`
	AudioFormat  string    `json:"audioFormat"`
}

// Player is the command surface the UI and the media session drive.
type Player interface {
	Play(track Track) error
	PlayFromList(tracks []Track, start int) error
	TogglePlay() error
	Resume() error
	Pause() error
	Stop() error
	Next() error
	Previous() error
	Seek(position time.Duration) error
	SeekBy(offset time.Duration) error
	SetVolume(level int) error
	ToggleShuffle() error
	CycleRepeat() error
	SetQueue(tracks []Track) error
	InsertNext(track Track) error
	Append(track Track) error
	Remove(id string) error
	ClearQueue() error
	ClearHistory() error
	Retry() error
	Snapshot() Session
	Queue() []Track
	History() []HistoryEntry
}
