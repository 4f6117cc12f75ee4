package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/backend"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"go.uber.org/zap"
)

// ErrSeekUnsupported is returned when a network stream's container can't
// be restarted mid-file.
var ErrSeekUnsupported = errors.New("seeking is not supported for this stream")

const (
	SpeakerBufferSize = 100 * time.Millisecond
	// decoded audio held ahead of the speaker
	sampleBufferSize = 2 * time.Second
	// how much must be decoded before a load counts as playable
	prebufferSize   = 250 * time.Millisecond
	decodeChunk     = 512
	resampleQuality = 4
	fallbackKbps    = 128
	signalBuffer    = 64
)

type opener func(ctx context.Context, at time.Duration) (beep.StreamSeekCloser, beep.Format, error)

// SpeakerOutput plays sources through the process-wide speaker. The graph
// is started once and every load is reconnected to it.
type SpeakerOutput struct {
	mu      sync.Mutex
	graph   *Graph
	client  *http.Client
	log     *zap.Logger
	signals chan Signal
	cur     *media

	initOnce sync.Once
	initErr  error
	// start brings up the audio device; replaced in tests
	start func(*Graph) error
}

type media struct {
	gen    uint64
	src    *api.Source
	open   opener
	ctrl   *beep.Ctrl
	seg    *segment
	total  int64
	ctx    context.Context
	cancel context.CancelFunc

	started   chan struct{}
	startOnce sync.Once
}

// NewSpeakerOutput creates an output feeding graph. The audio device is
// opened on the first Load.
func NewSpeakerOutput(graph *Graph, client *http.Client, log *zap.Logger) *SpeakerOutput {
	if client == nil {
		client = &http.Client{}
	}
	return &SpeakerOutput{
		graph:   graph,
		client:  client,
		log:     log.Named("output"),
		signals: make(chan Signal, signalBuffer),
		start:   startSpeaker,
	}
}

func startSpeaker(g *Graph) error {
	if err := speaker.Init(OutputSampleRate, OutputSampleRate.N(SpeakerBufferSize)); err != nil {
		return err
	}
	speaker.Play(g)
	return nil
}

// Graph returns the processing chain the output feeds.
func (o *SpeakerOutput) Graph() *Graph {
	return o.graph
}

func (o *SpeakerOutput) Signals() <-chan Signal {
	return o.signals
}

func (o *SpeakerOutput) Load(ctx context.Context, gen uint64, src *api.Source) (time.Duration, error) {
	o.initOnce.Do(func() {
		o.initErr = o.start(o.graph)
	})
	if o.initErr != nil {
		return 0, playerrors.NewPlayerError("speaker_init", src.TrackID,
			fmt.Errorf("%w: %v", playerrors.ErrMedia, o.initErr))
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mctx, cancel := context.WithCancel(context.Background())
	m := &media{
		gen:     gen,
		src:     src,
		ctx:     mctx,
		cancel:  cancel,
		started: make(chan struct{}),
	}
	if src.Offline {
		m.open = blobOpener(src.Blob)
	} else {
		m.open = o.urlOpener(m)
	}

	// Loads are ordered by gen; a stale one must not replace a newer source.
	o.mu.Lock()
	prev := o.cur
	if prev != nil && prev.gen > gen {
		o.mu.Unlock()
		cancel()
		return 0, playerrors.ErrPlaybackAborted
	}
	o.cur = m
	o.mu.Unlock()
	if prev != nil {
		o.drop(prev)
	}

	seg := o.newSegment(m, 0)
	speaker.Lock()
	m.seg = seg
	m.ctrl = &beep.Ctrl{Streamer: seg, Paused: true}
	speaker.Unlock()

	// A cancelled load tears the media down; a successful one outlives ctx.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	select {
	case <-seg.ready:
	case <-mctx.Done():
	}
	if mctx.Err() != nil {
		o.drop(m)
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, playerrors.ErrPlaybackAborted
	}
	if seg.err != nil {
		o.drop(m)
		return 0, mediaError(src.TrackID, seg.err)
	}

	if !o.attach(m) {
		o.drop(m)
		return 0, playerrors.ErrPlaybackAborted
	}

	length := seg.length
	if length <= 0 && m.total > 0 {
		length = time.Duration(float64(m.total) / float64(bytesPerSecond(src)) * float64(time.Second))
	}
	o.log.Debug("source loaded",
		zap.String("track", src.TrackID),
		zap.Bool("offline", src.Offline),
		zap.Duration("duration", length))
	return length, nil
}

func (o *SpeakerOutput) Play() <-chan error {
	res := make(chan error, 1)
	o.mu.Lock()
	m := o.cur
	o.mu.Unlock()
	if m == nil {
		res <- playerrors.ErrNoCurrentTrack
		return res
	}

	speaker.Lock()
	m.ctrl.Paused = false
	speaker.Unlock()

	go func() {
		select {
		case <-m.started:
			res <- nil
		case <-m.ctx.Done():
			res <- playerrors.ErrPlaybackAborted
		}
	}()
	return res
}

func (o *SpeakerOutput) Pause() {
	o.mu.Lock()
	m := o.cur
	o.mu.Unlock()
	if m == nil {
		return
	}
	speaker.Lock()
	m.ctrl.Paused = true
	speaker.Unlock()
}

// Seek restarts decoding at pos. Offline blobs seek in place; network
// streams are re-requested from an estimated byte offset.
func (o *SpeakerOutput) Seek(pos time.Duration) error {
	o.mu.Lock()
	m := o.cur
	o.mu.Unlock()
	if m == nil {
		return playerrors.ErrNoCurrentTrack
	}
	if !m.src.Offline && !Seekable(streamFormat(m.src)) {
		return fmt.Errorf("%w: %s", ErrSeekUnsupported, streamFormat(m.src))
	}
	if pos < 0 {
		pos = 0
	}

	seg := o.newSegment(m, pos)
	speaker.Lock()
	old := m.seg
	m.seg = seg
	m.ctrl.Streamer = seg
	detached := old.finished
	speaker.Unlock()
	old.cancel()

	// The graph drops a source once it ends.
	if detached {
		o.attach(m)
	}
	return nil
}

// Position is the seek point plus everything played since.
func (o *SpeakerOutput) Position() time.Duration {
	o.mu.Lock()
	m := o.cur
	o.mu.Unlock()
	if m == nil {
		return 0
	}
	speaker.Lock()
	seg := m.seg
	speaker.Unlock()
	return seg.position()
}

func (o *SpeakerOutput) Unload() {
	o.mu.Lock()
	m := o.cur
	o.mu.Unlock()
	if m != nil {
		o.drop(m)
	}
}

// drop tears m down. The graph only loses its source when that source is
// m's, so a late teardown of a superseded load leaves the newer one playing.
func (o *SpeakerOutput) drop(m *media) {
	o.mu.Lock()
	if o.cur == m {
		o.cur = nil
	}
	o.mu.Unlock()
	speaker.Lock()
	ctrl := m.ctrl
	speaker.Unlock()
	if ctrl != nil {
		o.graph.Release(ctrl)
	}
	m.cancel()
}

// attach connects m to the graph unless a newer load has replaced it.
func (o *SpeakerOutput) attach(m *media) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cur != m {
		return false
	}
	o.graph.Connect(m.ctrl)
	return true
}

func (o *SpeakerOutput) emit(m *media, kind SignalKind, err error) {
	if kind == SignalCanPlay || kind == SignalEnded {
		m.startOnce.Do(func() { close(m.started) })
	}
	select {
	case o.signals <- Signal{Kind: kind, Gen: m.gen, Err: err}:
	default:
		o.log.Warn("signal dropped", zap.Stringer("kind", kind), zap.Uint64("gen", m.gen))
	}
}

func (o *SpeakerOutput) newSegment(m *media, at time.Duration) *segment {
	ctx, cancel := context.WithCancel(m.ctx)
	seg := &segment{
		base:    at,
		samples: make(chan [2]float64, OutputSampleRate.N(sampleBufferSize)),
		ready:   make(chan struct{}),
		cancel:  cancel,
		notify: func(kind SignalKind, err error) {
			if kind == SignalError {
				err = mediaError(m.src.TrackID, err)
			}
			o.emit(m, kind, err)
		},
	}
	go seg.pump(ctx, m.open, at)
	return seg
}

func (o *SpeakerOutput) urlOpener(m *media) opener {
	src := m.src
	return func(ctx context.Context, at time.Duration) (beep.StreamSeekCloser, beep.Format, error) {
		var offset int64
		if at > 0 {
			offset = int64(at.Seconds() * float64(bytesPerSecond(src)))
			if m.total > 0 && offset >= m.total {
				offset = m.total - 1
			}
		}
		body, n, err := backend.OpenURL(ctx, o.client, src.URL, offset)
		if err != nil {
			return nil, beep.Format{}, err
		}
		if at == 0 && n > 0 {
			m.total = n
		}
		dec, format, err := Decode(body, streamFormat(src))
		if err != nil {
			body.Close()
			return nil, beep.Format{}, err
		}
		return dec, format, nil
	}
}

func blobOpener(blob []byte) opener {
	format := SniffFormat(blob)
	return func(ctx context.Context, at time.Duration) (beep.StreamSeekCloser, beep.Format, error) {
		if name, _ := canonical(format); name == transcoded {
			return decodeFFmpeg(blobReader{bytes.NewReader(blob)}, at)
		}
		dec, f, err := Decode(blobReader{bytes.NewReader(blob)}, format)
		if err != nil {
			return nil, beep.Format{}, err
		}
		if at > 0 {
			n := f.SampleRate.N(at)
			if n >= dec.Len() {
				n = dec.Len()
			}
			if err := dec.Seek(n); err != nil {
				dec.Close()
				return nil, beep.Format{}, err
			}
		}
		return dec, f, nil
	}
}

type blobReader struct {
	*bytes.Reader
}

func (blobReader) Close() error { return nil }

func streamFormat(src *api.Source) string {
	if src.MimeType != "" {
		return src.MimeType
	}
	return src.Quality.Format
}

func bytesPerSecond(src *api.Source) int64 {
	kbps := src.Quality.BitrateKbps
	if kbps <= 0 {
		kbps = fallbackKbps
	}
	return int64(kbps) * 1000 / 8
}

func mediaError(trackID string, err error) error {
	if errors.Is(err, playerrors.ErrResolution) || errors.Is(err, playerrors.ErrMedia) || playerrors.IsAborted(err) {
		return err
	}
	return playerrors.NewPlayerError("decode", trackID, fmt.Errorf("%w: %v", playerrors.ErrMedia, err))
}

// segment is one decode run starting at base. A pump goroutine fills
// samples; the speaker drains it without ever blocking.
type segment struct {
	base     time.Duration
	samples  chan [2]float64
	ready    chan struct{}
	once     sync.Once
	cancel   context.CancelFunc
	consumed atomic.Int64
	notify   func(SignalKind, error)

	// written by pump before ready closes or samples closes
	err    error
	length time.Duration

	// speaker side only
	waiting  bool
	finished bool
}

func (s *segment) markReady() {
	s.once.Do(func() { close(s.ready) })
}

func (s *segment) position() time.Duration {
	return s.base + OutputSampleRate.D(int(s.consumed.Load()))
}

func (s *segment) pump(ctx context.Context, open opener, at time.Duration) {
	defer close(s.samples)
	defer s.markReady()

	dec, format, err := open(ctx, at)
	if err != nil {
		s.err = err
		return
	}
	defer dec.Close()

	if n := dec.Len(); n > 0 {
		s.length = format.SampleRate.D(n)
	}
	var src beep.Streamer = dec
	if format.SampleRate != OutputSampleRate {
		src = beep.Resample(resampleQuality, format.SampleRate, OutputSampleRate, dec)
	}

	prebuffer := OutputSampleRate.N(prebufferSize)
	buf := make([][2]float64, decodeChunk)
	sent := 0
	for {
		n, ok := src.Stream(buf)
		for i := 0; i < n; i++ {
			select {
			case s.samples <- buf[i]:
			case <-ctx.Done():
				return
			}
		}
		sent += n
		if sent >= prebuffer {
			s.markReady()
		}
		if !ok {
			if err := src.Err(); err != nil && ctx.Err() == nil {
				s.err = err
			}
			return
		}
	}
}

// Stream implements beep.Streamer. An empty buffer yields silence and a
// waiting signal; the first samples after that yield canplay.
func (s *segment) Stream(samples [][2]float64) (int, bool) {
	if s.finished {
		return 0, false
	}

	n := 0
	closed := false
loop:
	for n < len(samples) {
		select {
		case v, ok := <-s.samples:
			if !ok {
				closed = true
				break loop
			}
			samples[n] = v
			n++
		default:
			break loop
		}
	}
	s.consumed.Add(int64(n))

	if n > 0 && s.waiting {
		s.waiting = false
		s.notify(SignalCanPlay, nil)
	} else if n > 0 && s.consumed.Load() == int64(n) {
		s.notify(SignalCanPlay, nil)
	}

	if closed {
		s.finished = true
		if s.err != nil {
			s.notify(SignalError, s.err)
		} else {
			s.notify(SignalEnded, nil)
		}
		if n == 0 {
			return 0, false
		}
		return n, true
	}

	if n < len(samples) {
		if !s.waiting {
			s.waiting = true
			s.notify(SignalWaiting, nil)
		}
		for i := n; i < len(samples); i++ {
			samples[i] = [2]float64{}
		}
	}
	return len(samples), true
}

func (s *segment) Err() error {
	return nil
}
