package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jscyril/supersonic/api"
)

// Sentinel errors for common conditions
var (
	ErrTrackNotFound      = errors.New("track not found")
	ErrInvalidFormat      = errors.New("unsupported audio format")
	ErrEmptyQueue         = errors.New("playback queue is empty")
	ErrInvalidVolume      = errors.New("volume must be between 0 and 100")
	ErrNoCurrentTrack     = errors.New("no current track")
	ErrEngineClosed       = errors.New("engine closed")
	ErrStorageLimit       = errors.New("download would exceed storage limit")
	ErrAlreadyDownloaded  = errors.New("track already downloaded")
	ErrDownloadInProgress = errors.New("download already in progress")
)

// Playback failure taxonomy
var (
	ErrResolution      = errors.New("could not resolve source")
	ErrLoadTimeout     = errors.New("source did not become ready in time")
	ErrPlaybackAborted = errors.New("play request was superseded")
	ErrMedia           = errors.New("decode or media error")
)

// Resolution failure kinds
var (
	ErrNotFound         = errors.New("not found")
	ErrNetwork          = errors.New("network error")
	ErrTimeout          = errors.New("timed out")
	ErrMalformedPayload = errors.New("malformed payload")
)

// PlayerError wraps errors with additional context
type PlayerError struct {
	Op    string // Operation that failed
	Track string // Track ID if applicable
	Err   error  // Underlying error
}

func (e *PlayerError) Error() string {
	if e.Track != "" {
		return fmt.Sprintf("%s failed for track %s: %v", e.Op, e.Track, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError
func NewPlayerError(op, track string, err error) *PlayerError {
	return &PlayerError{Op: op, Track: track, Err: err}
}

// ResolutionError reports why a track id could not be turned into a source.
// It matches ErrResolution and its Kind with errors.Is.
type ResolutionError struct {
	TrackID string
	Kind    error
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %v: %v", e.TrackID, e.Kind, e.Err)
	}
	return fmt.Sprintf("resolve %s: %v", e.TrackID, e.Kind)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution || target == e.Kind
}

// NewResolutionError creates a ResolutionError. A nil kind is treated as a
// network failure unless err is a context deadline.
func NewResolutionError(trackID string, kind, err error) *ResolutionError {
	if kind == nil {
		kind = ErrNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrTimeout
		}
	}
	return &ResolutionError{TrackID: trackID, Kind: kind, Err: err}
}

// IsAborted reports whether err only means a superseded request.
func IsAborted(err error) bool {
	return errors.Is(err, ErrPlaybackAborted) || errors.Is(err, context.Canceled)
}

// Classify maps err onto the playback error taxonomy.
func Classify(err error) api.ErrorKind {
	switch {
	case IsAborted(err):
		return api.ErrorAborted
	case errors.Is(err, ErrResolution):
		return api.ErrorResolution
	case errors.Is(err, ErrLoadTimeout), errors.Is(err, context.DeadlineExceeded):
		return api.ErrorLoadTimeout
	default:
		return api.ErrorMedia
	}
}
