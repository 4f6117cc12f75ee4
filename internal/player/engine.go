// Package player is the playback engine. A single goroutine owns the
// session, the queue cursor and the output; everything else talks to it by
// posting closures to its inbox.
package player

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/audio"
	"github.com/jscyril/supersonic/internal/clock"
	"github.com/jscyril/supersonic/internal/crossfade"
	"github.com/jscyril/supersonic/internal/playlist"
	"github.com/jscyril/supersonic/internal/prefetch"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"github.com/jscyril/supersonic/pkg/events"
	"go.uber.org/zap"
)

// Ensure Engine implements Player interface at compile time
var _ api.Player = (*Engine)(nil)

const (
	LoadTimeout      = 15 * time.Second
	PositionInterval = 250 * time.Millisecond
	// Previous restarts the current track past this point
	RestartThreshold = 3 * time.Second
	AutoplayCount    = 20
	DefaultVolume    = 80

	autoplayTimeout  = 15 * time.Second
	trackPlayTimeout = 10 * time.Second
	inboxSize        = 64
)

// Resolver turns a track id into a playable source. Resolve may return a
// downloaded copy; Network always goes to the backend.
type Resolver interface {
	Resolve(ctx context.Context, trackID, quality string) (*api.Source, error)
	Network(ctx context.Context, trackID, quality string) (*api.Source, error)
}

// Backend is the part of the proxy the engine calls besides extraction
type Backend interface {
	AutoplayQueue(ctx context.Context, seedID string, count int) ([]api.Track, error)
	TrackPlay(ctx context.Context, track api.Track) error
	Prefetch(ctx context.Context, ids []string) error
}

// Mixer is the processing graph's control surface
type Mixer interface {
	SetVolume(percent int)
	SetBassBoost(percent int)
	SetNormalize(on bool)
	FadeOut(d time.Duration)
	RestoreGain(percent int)
}

// Options wires an Engine. Output, Mixer, Resolver and Backend are
// required; the rest have defaults.
type Options struct {
	Output   audio.Output
	Mixer    Mixer
	Resolver Resolver
	Backend  Backend
	Clock    clock.Scheduler
	Log      *zap.Logger
	Rand     *rand.Rand
	Settings api.Settings
	Volume   int

	LoadTimeout      time.Duration
	PositionInterval time.Duration
}

// Engine is the single owner of the output, the graph and the session.
type Engine struct {
	output   audio.Output
	mixer    Mixer
	resolver Resolver
	backend  Backend
	clock    clock.Scheduler
	log      *zap.Logger
	rng      *rand.Rand

	queue     *playlist.Queue
	history   *playlist.History
	bus       *events.EventBus
	crossfade *crossfade.Coordinator
	prefetch  *prefetch.Scheduler

	loadTimeout  time.Duration
	tickInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan func()
	done    chan struct{}
	started bool
	closeMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup

	mu      sync.RWMutex
	session api.Session

	// owned by the loop goroutine
	settings      api.Settings
	gen           uint64
	loadCancel    context.CancelFunc
	pendingPlay   <-chan error
	pauseDeferred bool
	reported      uint64
	autoplayBusy  bool
}

// New creates an engine. Nothing runs until Start.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Wall
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = LoadTimeout
	}
	if opts.PositionInterval <= 0 {
		opts.PositionInterval = PositionInterval
	}
	volume := opts.Volume
	if volume == 0 {
		volume = DefaultVolume
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		output:       opts.Output,
		mixer:        opts.Mixer,
		resolver:     opts.Resolver,
		backend:      opts.Backend,
		clock:        opts.Clock,
		log:          opts.Log.Named("engine"),
		rng:          opts.Rand,
		queue:        playlist.NewQueue(),
		history:      playlist.NewHistory(),
		bus:          events.NewEventBus(),
		loadTimeout:  opts.LoadTimeout,
		tickInterval: opts.PositionInterval,
		ctx:          ctx,
		cancel:       cancel,
		inbox:        make(chan func(), inboxSize),
		done:         make(chan struct{}),
		settings:     opts.Settings,
		session: api.Session{
			State:  api.StateIdle,
			Volume: clampVolume(volume),
		},
	}
	e.crossfade = crossfade.New(opts.Mixer, opts.Clock, e.crossfadeAdvance, opts.Log)
	e.prefetch = prefetch.New(ctx, opts.Backend, opts.Clock, opts.Log)

	e.applySettings(opts.Settings)
	e.mixer.SetVolume(e.session.Volume)
	return e
}

// Start runs the engine loop, the signal pump and the position ticker.
// ctx ending has the same effect as Close.
func (e *Engine) Start(ctx context.Context) {
	e.closeMu.Lock()
	if e.started || e.closed {
		e.closeMu.Unlock()
		return
	}
	e.started = true
	e.closeMu.Unlock()

	go e.run()
	go e.pumpSignals()
	go e.tickPosition()
	go func() {
		select {
		case <-ctx.Done():
			e.Close()
		case <-e.ctx.Done():
		}
	}()
}

// Close stops the engine and releases the output. Calls after Close
// return ErrEngineClosed.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.closeMu.Unlock()

	e.cancel()
	if started {
		<-e.done
	} else {
		close(e.done)
	}

	if e.loadCancel != nil {
		e.loadCancel()
	}
	e.crossfade.Stop()
	e.prefetch.Cancel()
	e.output.Unload()
	e.wg.Wait()
	e.prefetch.Wait()
	e.bus.Close()
	return nil
}

// Events returns the bus the engine publishes on
func (e *Engine) Events() *events.EventBus {
	return e.bus
}

// Snapshot returns a copy of the session
func (e *Engine) Snapshot() api.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.Clone()
}

// Queue returns a copy of the queue
func (e *Engine) Queue() []api.Track {
	return e.queue.GetAll()
}

// History returns a copy of the history, most recent first
func (e *Engine) History() []api.HistoryEntry {
	return e.history.GetAll()
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.inbox:
			fn()
		}
	}
}

// post hands fn to the loop without waiting for it
func (e *Engine) post(fn func()) error {
	select {
	case <-e.done:
		return playerrors.ErrEngineClosed
	default:
	}
	select {
	case e.inbox <- fn:
		return nil
	case <-e.done:
		return playerrors.ErrEngineClosed
	}
}

// call runs fn on the loop and waits for it
func (e *Engine) call(fn func()) error {
	finished := make(chan struct{})
	if err := e.post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return playerrors.ErrEngineClosed
	}
}

// goAsync runs fn on its own goroutine, tracked for Close
func (e *Engine) goAsync(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

func (e *Engine) pumpSignals() {
	signals := e.output.Signals()
	for {
		select {
		case <-e.ctx.Done():
			return
		case sig := <-signals:
			if e.post(func() { e.onSignal(sig) }) != nil {
				return
			}
		}
	}
}

func (e *Engine) tickPosition() {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if e.post(e.tick) != nil {
				return
			}
		}
	}
}

// update mutates the session under the write lock. Loop only.
func (e *Engine) update(fn func(s *api.Session)) {
	e.mu.Lock()
	fn(&e.session)
	e.mu.Unlock()
}

// current reads the session without copying. Loop only.
func (e *Engine) current() api.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

func (e *Engine) currentID() string {
	s := e.current()
	if s.Track == nil {
		return ""
	}
	return s.Track.ID
}

func (e *Engine) publish(t api.EventType) {
	e.bus.Publish(api.Event{Type: t, Session: e.Snapshot()})
}

func (e *Engine) publishErr(err error) {
	e.bus.Publish(api.Event{Type: api.EventError, Session: e.Snapshot(), Err: err})
}

func clampVolume(v int) int {
	return min(max(v, 0), 100)
}
