package audio

import "math"

// compressor is a feed-forward peak compressor with a soft knee. With a
// ratio of 1 it is transparent regardless of threshold.
type compressor struct {
	sampleRate float64
	knee       float64
	attack     float64
	release    float64

	attackCoef  float64
	releaseCoef float64
	// current gain reduction in dB, always <= 0
	reduction float64
}

func newCompressor(sampleRate, knee, attack, release float64) *compressor {
	return &compressor{
		sampleRate:  sampleRate,
		knee:        knee,
		attack:      attack,
		release:     release,
		attackCoef:  math.Exp(-1 / (attack * sampleRate)),
		releaseCoef: math.Exp(-1 / (release * sampleRate)),
	}
}

// staticCurve returns the gain change in dB for an input level.
func (c *compressor) staticCurve(levelDB, threshold, ratio float64) float64 {
	if ratio <= 1 {
		return 0
	}
	over := levelDB - threshold
	slope := 1 - 1/ratio
	switch {
	case 2*over <= -c.knee:
		return 0
	case 2*math.Abs(over) < c.knee:
		x := over + c.knee/2
		return -slope * x * x / (2 * c.knee)
	default:
		return -slope * over
	}
}

func (c *compressor) process(s [2]float64, threshold, ratio float64) [2]float64 {
	peak := math.Max(math.Abs(s[0]), math.Abs(s[1]))
	levelDB := -120.0
	if peak > 1e-6 {
		levelDB = 20 * math.Log10(peak)
	}

	want := c.staticCurve(levelDB, threshold, ratio)
	coef := c.releaseCoef
	if want < c.reduction {
		coef = c.attackCoef
	}
	c.reduction = want + (c.reduction-want)*coef

	g := math.Pow(10, c.reduction/20)
	return [2]float64{s[0] * g, s[1] * g}
}

// Reduction reports the current gain reduction in dB.
func (c *compressor) Reduction() float64 {
	return c.reduction
}
