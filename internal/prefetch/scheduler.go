package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/clock"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// SettleDelay lets the current track load before warming others
	SettleDelay = 2 * time.Second
	// Lookahead is how many upcoming entries are considered
	Lookahead   = 3
	callTimeout = 10 * time.Second
)

// Warmer is the backend cache-warming call
type Warmer interface {
	Prefetch(ctx context.Context, ids []string) error
}

// Mark is where an id stands in the prefetch cycle
type Mark int

const (
	Unmarked Mark = iota
	Attempting
	Confirmed
)

// Scheduler warms the backend for upcoming queue entries. Ids move from
// attempting to confirmed when the call succeeds and are unmarked when it
// fails, so a later cycle can retry them.
type Scheduler struct {
	mu         sync.Mutex
	ctx        context.Context
	warmer     Warmer
	clock      clock.Scheduler
	log        *zap.Logger
	attempting map[string]struct{}
	confirmed  map[string]struct{}
	timer      clock.Timer
	wg         sync.WaitGroup
}

// New creates a scheduler whose calls are bound to ctx
func New(ctx context.Context, warmer Warmer, sched clock.Scheduler, log *zap.Logger) *Scheduler {
	if sched == nil {
		sched = clock.Wall
	}
	return &Scheduler{
		ctx:        ctx,
		warmer:     warmer,
		clock:      sched,
		log:        log.Named("prefetch"),
		attempting: make(map[string]struct{}),
		confirmed:  make(map[string]struct{}),
	}
}

// Schedule replaces any pending run with one that fires after
// SettleDelay. upcoming is evaluated when the run fires.
func (s *Scheduler) Schedule(upcoming func() []api.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(SettleDelay, func() { s.run(upcoming()) })
}

// Cancel drops a pending run
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) run(upcoming []api.Track) {
	s.mu.Lock()
	ids := lo.FilterMap(lo.Slice(upcoming, 0, Lookahead), func(t api.Track, _ int) (string, bool) {
		return t.ID, s.mark(t.ID) == Unmarked
	})
	if len(ids) == 0 {
		s.mu.Unlock()
		return
	}
	for _, id := range ids {
		s.attempting[id] = struct{}{}
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, callTimeout)
		defer cancel()

		err := s.warmer.Prefetch(ctx, ids)

		s.mu.Lock()
		defer s.mu.Unlock()
		for _, id := range ids {
			delete(s.attempting, id)
			if err == nil {
				s.confirmed[id] = struct{}{}
			}
		}
		if err != nil {
			s.log.Warn("prefetch failed", zap.Strings("ids", ids), zap.Error(err))
			return
		}
		s.log.Debug("prefetched", zap.Strings("ids", ids))
	}()
}

func (s *Scheduler) mark(id string) Mark {
	if _, ok := s.confirmed[id]; ok {
		return Confirmed
	}
	if _, ok := s.attempting[id]; ok {
		return Attempting
	}
	return Unmarked
}

// Mark reports the prefetch state of id
func (s *Scheduler) Mark(id string) Mark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark(id)
}

// Wait blocks until in-flight calls finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
