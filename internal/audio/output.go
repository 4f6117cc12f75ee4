package audio

import (
	"context"
	"time"

	"github.com/jscyril/supersonic/api"
)

// SignalKind is a media-element notification.
type SignalKind int

const (
	SignalWaiting SignalKind = iota
	SignalCanPlay
	SignalEnded
	SignalError
)

func (k SignalKind) String() string {
	return [...]string{"waiting", "canplay", "ended", "error"}[k]
}

// Signal is emitted by an Output for the load identified by Gen. Consumers
// drop signals whose Gen is not the current load.
type Signal struct {
	Kind SignalKind
	Gen  uint64
	Err  error
}

// Output is a single media element holding at most one source.
type Output interface {
	// Load replaces the current source and blocks until it can play or ctx
	// ends. It returns the duration if the source knows it.
	Load(ctx context.Context, gen uint64, src *api.Source) (time.Duration, error)
	// Play starts or resumes output. The channel yields nil once audio is
	// flowing, or an error if the load is superseded or fails first.
	Play() <-chan error
	Pause()
	Seek(pos time.Duration) error
	Position() time.Duration
	Unload()
	Signals() <-chan Signal
}
