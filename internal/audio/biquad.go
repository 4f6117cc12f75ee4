package audio

import "math"

// lowShelf is an RBJ low-shelf biquad (shelf slope 1) with per-channel
// direct form I state. Coefficients are recomputed only when the gain
// moves by more than gainEpsilon dB.
type lowShelf struct {
	sampleRate float64
	frequency  float64
	gainDB     float64

	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64
}

const gainEpsilon = 1e-4

func newLowShelf(sampleRate, frequency float64) *lowShelf {
	f := &lowShelf{sampleRate: sampleRate, frequency: frequency}
	f.design(0)
	return f
}

func (f *lowShelf) design(gainDB float64) {
	f.gainDB = gainDB
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * f.frequency / f.sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / 2 * math.Sqrt2
	sqrtA2alpha := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*cosw + sqrtA2alpha)
	b1 := 2 * a * ((a - 1) - (a+1)*cosw)
	b2 := a * ((a + 1) - (a-1)*cosw - sqrtA2alpha)
	a0 := (a + 1) + (a-1)*cosw + sqrtA2alpha
	a1 := -2 * ((a - 1) + (a+1)*cosw)
	a2 := (a + 1) + (a-1)*cosw - sqrtA2alpha

	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1, f.a2 = a1/a0, a2/a0
}

func (f *lowShelf) process(s [2]float64, gainDB float64) [2]float64 {
	if math.Abs(gainDB-f.gainDB) > gainEpsilon {
		f.design(gainDB)
	}
	var out [2]float64
	for c := 0; c < 2; c++ {
		x := s[c]
		y := f.b0*x + f.b1*f.x1[c] + f.b2*f.x2[c] - f.a1*f.y1[c] - f.a2*f.y2[c]
		f.x2[c], f.x1[c] = f.x1[c], x
		f.y2[c], f.y1[c] = f.y1[c], y
		out[c] = y
	}
	return out
}

func (f *lowShelf) reset() {
	f.x1, f.x2, f.y1, f.y2 = [2]float64{}, [2]float64{}, [2]float64{}, [2]float64{}
}
