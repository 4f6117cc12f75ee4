package crossfade

import (
	"sync"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/clock"
	"go.uber.org/zap"
)

// Lead is how long before silence the next track is started
const Lead = 100 * time.Millisecond

// Fader is the gain stage a crossfade ramps down
type Fader interface {
	FadeOut(d time.Duration)
}

// Coordinator fades the current track out over its last window and
// schedules the advance so the next track starts just before silence.
// It fires at most once per track instance.
type Coordinator struct {
	mu      sync.Mutex
	fader   Fader
	sched   clock.Scheduler
	advance func(trackID string)
	log     *zap.Logger

	window    time.Duration
	trackID   string
	triggered bool
	timer     clock.Timer
}

// New creates a coordinator. advance receives the id of the track that was
// faded so the caller can ignore it if playback has moved on.
func New(fader Fader, sched clock.Scheduler, advance func(trackID string), log *zap.Logger) *Coordinator {
	if sched == nil {
		sched = clock.Wall
	}
	return &Coordinator{
		fader:   fader,
		sched:   sched,
		advance: advance,
		log:     log.Named("crossfade"),
	}
}

// SetWindow changes the crossfade window; zero disables crossfading.
// It applies from the next observed position.
func (c *Coordinator) SetWindow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = max(d, 0)
}

// Window returns the configured window
func (c *Coordinator) Window() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// Reset arms the coordinator for trackID and cancels any pending advance.
// Call it on every track change and metadata reload.
func (c *Coordinator) Reset(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset(trackID)
}

func (c *Coordinator) reset(trackID string) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.trackID = trackID
	c.triggered = false
}

// Observe feeds a position update. It reports whether this update started
// the crossfade.
func (c *Coordinator) Observe(trackID string, position, duration time.Duration, repeat api.RepeatMode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if trackID != c.trackID {
		c.reset(trackID)
	}
	if c.triggered || c.window <= 0 || repeat == api.RepeatOne || duration <= 0 {
		return false
	}

	remaining := duration - position
	if remaining <= 0 || remaining > c.window {
		return false
	}

	c.triggered = true
	c.fader.FadeOut(remaining)
	delay := max(remaining-Lead, 0)
	c.timer = c.sched.AfterFunc(delay, func() { c.advance(trackID) })

	c.log.Debug("crossfade started",
		zap.String("track", trackID),
		zap.Duration("remaining", remaining),
		zap.Duration("advance_in", delay))
	return true
}

// Triggered reports whether the current track has handed its transition
// to the coordinator; a natural end after that must be ignored.
func (c *Coordinator) Triggered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggered
}

// Stop cancels any pending advance
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
