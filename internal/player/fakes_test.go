package player

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/audio"
	"github.com/jscyril/supersonic/internal/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type loadCall struct {
	gen uint64
	src *api.Source
}

type fakeOutput struct {
	mu       sync.Mutex
	signals  chan audio.Signal
	loads    []loadCall
	duration time.Duration
	loadErr  map[string]error
	// only offline sources of these ids fail
	offlineErr map[string]error
	// loads of these ids wait for ctx
	hang     map[string]bool
	holdPlay bool
	pending  []chan error
	plays    int
	pauses   int
	unloads  int
	position time.Duration
	seeks    []time.Duration
	seekErr  error
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{
		signals:  make(chan audio.Signal, 16),
		duration: 10 * time.Second,
		loadErr:    make(map[string]error),
		offlineErr: make(map[string]error),
		hang:       make(map[string]bool),
	}
}

func (f *fakeOutput) Load(ctx context.Context, gen uint64, src *api.Source) (time.Duration, error) {
	f.mu.Lock()
	f.loads = append(f.loads, loadCall{gen: gen, src: src})
	hang := f.hang[src.TrackID]
	err := f.loadErr[src.TrackID]
	if src.Offline && err == nil {
		err = f.offlineErr[src.TrackID]
	}
	dur := f.duration
	f.position = 0
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return dur, err
}

func (f *fakeOutput) Play() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	ch := make(chan error, 1)
	if f.holdPlay {
		f.pending = append(f.pending, ch)
	} else {
		ch <- nil
	}
	return ch
}

func (f *fakeOutput) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakeOutput) Seek(pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekErr != nil {
		return f.seekErr
	}
	f.seeks = append(f.seeks, pos)
	f.position = pos
	return nil
}

func (f *fakeOutput) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeOutput) Unload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
}

func (f *fakeOutput) Signals() <-chan audio.Signal {
	return f.signals
}

func (f *fakeOutput) setLoadErr(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.loadErr, id)
		return
	}
	f.loadErr[id] = err
}

func (f *fakeOutput) loadedSources() []*api.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	srcs := make([]*api.Source, len(f.loads))
	for i, l := range f.loads {
		srcs[i] = l.src
	}
	return srcs
}

func (f *fakeOutput) setPosition(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = d
}

func (f *fakeOutput) lastGen() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return 0
	}
	return f.loads[len(f.loads)-1].gen
}

func (f *fakeOutput) loadedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.loads))
	for i, l := range f.loads {
		ids[i] = l.src.TrackID
	}
	return ids
}

func (f *fakeOutput) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeOutput) settle(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.pending {
		ch <- err
	}
	f.pending = nil
}

func (f *fakeOutput) counts() (plays, pauses int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays, f.pauses
}

func (f *fakeOutput) seekCalls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.seeks...)
}

type fakeResolver struct {
	mu      sync.Mutex
	calls   []string
	quality []string
	network []string
	errs    map[string]error
	// these ids resolve to a downloaded copy first
	offline map[string]bool
	// resolutions of these ids wait for the channel, ignoring ctx
	gates map[string]chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		errs:    make(map[string]error),
		offline: make(map[string]bool),
		gates:   make(map[string]chan struct{}),
	}
}

func (r *fakeResolver) Resolve(ctx context.Context, trackID, quality string) (*api.Source, error) {
	r.mu.Lock()
	r.calls = append(r.calls, trackID)
	r.quality = append(r.quality, quality)
	gate := r.gates[trackID]
	err := r.errs[trackID]
	offline := r.offline[trackID]
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if offline {
		return &api.Source{
			TrackID:  trackID,
			Offline:  true,
			Blob:     []byte("downloaded " + trackID),
			MimeType: "audio/webm",
			Quality:  api.AudioQuality{Format: api.FormatOffline, BitrateKbps: 320},
		}, nil
	}
	return streamSource(trackID), nil
}

func (r *fakeResolver) Network(ctx context.Context, trackID, quality string) (*api.Source, error) {
	r.mu.Lock()
	r.network = append(r.network, trackID)
	err := r.errs[trackID]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return streamSource(trackID), nil
}

func (r *fakeResolver) networkCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.network...)
}

func streamSource(trackID string) *api.Source {
	return &api.Source{
		TrackID:  trackID,
		URL:      "https://cdn.example.com/" + trackID,
		MimeType: "audio/mpeg",
		Quality:  api.AudioQuality{Format: "mp3", BitrateKbps: 160, SampleRateHz: 48000},
	}
}

func (r *fakeResolver) setErr(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[id] = err
}

func (r *fakeResolver) qualities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.quality...)
}

type fakeBackend struct {
	mu         sync.Mutex
	autoplay   []api.Track
	autoErr    error
	seeds      []string
	played     []string
	prefetched [][]string
}

func (b *fakeBackend) AutoplayQueue(ctx context.Context, seedID string, count int) ([]api.Track, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeds = append(b.seeds, seedID)
	return b.autoplay, b.autoErr
}

func (b *fakeBackend) TrackPlay(ctx context.Context, track api.Track) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.played = append(b.played, track.ID)
	return fmt.Errorf("personalisation is down")
}

func (b *fakeBackend) Prefetch(ctx context.Context, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prefetched = append(b.prefetched, ids)
	return nil
}

func (b *fakeBackend) playedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.played...)
}

func (b *fakeBackend) prefetchCalls() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.prefetched...)
}

type fakeMixer struct {
	mu        sync.Mutex
	volume    int
	bass      int
	normalize bool
	fades     []time.Duration
	restores  int
}

func (m *fakeMixer) SetVolume(p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = p
}

func (m *fakeMixer) SetBassBoost(p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bass = p
}

func (m *fakeMixer) SetNormalize(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalize = on
}

func (m *fakeMixer) FadeOut(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fades = append(m.fades, d)
}

func (m *fakeMixer) RestoreGain(p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = p
	m.restores++
}

func (m *fakeMixer) state() (volume, bass int, normalize bool, fades []time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume, m.bass, m.normalize, append([]time.Duration(nil), m.fades...)
}

type harness struct {
	e        *Engine
	output   *fakeOutput
	resolver *fakeResolver
	backend  *fakeBackend
	mixer    *fakeMixer
	clock    *clock.Manual
}

func newHarness(t *testing.T, settings api.Settings) *harness {
	t.Helper()
	h := &harness{
		output:   newFakeOutput(),
		resolver: newFakeResolver(),
		backend:  &fakeBackend{},
		mixer:    &fakeMixer{},
		clock:    clock.NewManual(),
	}
	h.e = New(Options{
		Output:           h.output,
		Mixer:            h.mixer,
		Resolver:         h.resolver,
		Backend:          h.backend,
		Clock:            h.clock,
		Log:              zap.NewNop(),
		Rand:             rand.New(rand.NewSource(1)),
		Settings:         settings,
		LoadTimeout:      100 * time.Millisecond,
		PositionInterval: time.Hour,
	})
	h.e.Start(context.Background())
	t.Cleanup(func() { h.e.Close() })
	return h
}

func tracks(ids ...string) []api.Track {
	out := make([]api.Track, len(ids))
	for i, id := range ids {
		out[i] = api.Track{ID: id, Title: "Track " + id, DurationSeconds: 10}
	}
	return out
}

func (h *harness) waitFor(t *testing.T, cond func(api.Session) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.e.Snapshot()) }, 2*time.Second, 5*time.Millisecond, msg)
}

func (h *harness) waitPlaying(t *testing.T, id string) {
	t.Helper()
	h.waitFor(t, func(s api.Session) bool {
		return s.Track != nil && s.Track.ID == id && s.State == api.StatePlaying
	}, "expected "+id+" to be playing")
}

// flush waits until everything posted so far has run
func (h *harness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.e.call(func() {}))
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.e.call(h.e.tick))
}

func (h *harness) signal(kind audio.SignalKind) {
	h.output.signals <- audio.Signal{Kind: kind, Gen: h.output.lastGen()}
}

func currentID(s api.Session) string {
	if s.Track == nil {
		return ""
	}
	return s.Track.ID
}
