package audio

import (
	"sync"
	"time"

	"github.com/faiface/beep"
)

// OutputSampleRate is the rate the speaker runs at; sources are resampled to it.
const OutputSampleRate beep.SampleRate = 44100

const (
	bassFrequency = 200.0
	maxBassDB     = 15.0
	// time constant for user-facing parameter changes
	smoothing = 0.05
	// faster constant used to bring gain back after a fade
	restoreSmoothing = 0.015

	normalizeThreshold = -24.0
	normalizeRatio     = 12.0
	bypassThreshold    = 0.0
	bypassRatio        = 1.0
	compressorKnee     = 30.0
	compressorAttack   = 0.003
	compressorRelease  = 0.25
)

// Graph is the processing chain source → low shelf → compressor → gain.
// It lives for the whole process and is reconnected to each new source.
// Every parameter change is a scheduled ramp on the graph's sample clock.
type Graph struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	clock      int64
	source     beep.Streamer

	shelf *lowShelf
	comp  *compressor

	gain      *Param
	bassDB    *Param
	threshold *Param
	ratio     *Param
}

// NewGraph builds the chain with unity gain, no bass boost and the
// compressor bypassed.
func NewGraph(sampleRate beep.SampleRate) *Graph {
	sr := float64(sampleRate)
	return &Graph{
		sampleRate: sampleRate,
		shelf:      newLowShelf(sr, bassFrequency),
		comp:       newCompressor(sr, compressorKnee, compressorAttack, compressorRelease),
		gain:       NewParam(1),
		bassDB:     NewParam(0),
		threshold:  NewParam(bypassThreshold),
		ratio:      NewParam(bypassRatio),
	}
}

// Connect makes s the graph's input, replacing any previous source.
func (g *Graph) Connect(s beep.Streamer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source = s
	g.shelf.reset()
}

// Release detaches s if it is still the graph's source; the graph then
// outputs silence.
func (g *Graph) Release(s beep.Streamer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.source == s {
		g.source = nil
	}
}

func (g *Graph) now() float64 {
	return float64(g.clock) / float64(g.sampleRate)
}

// Now returns the graph clock in seconds.
func (g *Graph) Now() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now()
}

// Gain returns the gain most recently applied.
func (g *Graph) Gain() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gain.Value()
}

// SetVolume glides the gain to percent/100.
func (g *Graph) SetVolume(percent int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gain.SetTargetAtTime(volumeGain(percent), g.now(), smoothing)
}

// SetBassBoost glides the shelf gain to percent of the maximum boost.
func (g *Graph) SetBassBoost(percent int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bassDB.SetTargetAtTime(BassBoostDB(percent), g.now(), smoothing)
}

// SetNormalize moves the compressor between limiting and transparent.
// The compressor stays wired either way.
func (g *Graph) SetNormalize(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	threshold, ratio := bypassThreshold, bypassRatio
	if on {
		threshold, ratio = normalizeThreshold, normalizeRatio
	}
	now := g.now()
	g.threshold.SetTargetAtTime(threshold, now, smoothing)
	g.ratio.SetTargetAtTime(ratio, now, smoothing)
}

// FadeOut ramps the gain linearly from its current value to zero over d.
func (g *Graph) FadeOut(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.gain.CancelScheduledValues(now)
	g.gain.SetValueAtTime(g.gain.Value(), now)
	g.gain.LinearRampToValueAtTime(0, now+d.Seconds())
}

// RestoreGain cancels any fade and brings the gain back to percent/100.
func (g *Graph) RestoreGain(percent int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.gain.CancelScheduledValues(now)
	g.gain.SetTargetAtTime(volumeGain(percent), now, restoreSmoothing)
}

// Stream implements beep.Streamer. It always fills samples, padding with
// silence when the source is missing or has ended.
func (g *Graph) Stream(samples [][2]float64) (n int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	filled := 0
	if g.source != nil {
		var srcOK bool
		filled, srcOK = g.source.Stream(samples)
		if !srcOK {
			filled = 0
			g.source = nil
		}
	}
	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	sr := float64(g.sampleRate)
	for i := range samples {
		t := float64(g.clock+int64(i)) / sr
		s := g.shelf.process(samples[i], g.bassDB.At(t))
		s = g.comp.process(s, g.threshold.At(t), g.ratio.At(t))
		gain := g.gain.At(t)
		samples[i] = [2]float64{s[0] * gain, s[1] * gain}
	}
	g.clock += int64(len(samples))
	return len(samples), true
}

func (g *Graph) Err() error {
	return nil
}

func volumeGain(percent int) float64 {
	return float64(clampPercent(percent)) / 100
}

// BassBoostDB maps a 0-100 bass setting onto 0-15 dB of shelf gain.
func BassBoostDB(percent int) float64 {
	return float64(clampPercent(percent)) / 100 * maxBassDB
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
