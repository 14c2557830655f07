// Package audioproc implements the ducking audio processor: sample-accurate
// gain ramps applied to outgoing agent audio so a speaker can be smoothly
// attenuated while another participant talks.
package audioproc

import "math"

// Curve selects the interpolation shape of a gain ramp.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
	CurveLogarithmic Curve = "logarithmic"
)

func (c Curve) apply(p float64) float64 {
	switch c {
	case CurveExponential:
		return p * p
	case CurveLogarithmic:
		return 1 - (1-p)*(1-p)
	default:
		return p
	}
}

// gainRamp interpolates between a starting and target gain over a fixed
// number of samples, using the configured curve.
type gainRamp struct {
	from, to float64
	curve    Curve
	total    int
	pos      int
	active   bool
}

func (r *gainRamp) start(from, to float64, samples int, curve Curve) {
	if samples <= 0 {
		r.from, r.to = to, to
		r.total, r.pos = 0, 0
		r.active = false
		return
	}
	r.from, r.to = from, to
	r.curve = curve
	r.total = samples
	r.pos = 0
	r.active = true
}

// next returns the ramp's gain at its current sample position and
// advances the ramp by one sample. Once the ramp completes it
// reports the target gain and clears active.
func (r *gainRamp) next() float64 {
	if !r.active {
		return r.to
	}
	p := float64(r.pos) / float64(r.total)
	if p > 1 {
		p = 1
	}
	v := r.from + (r.to-r.from)*r.curve.apply(p)
	r.pos++
	if r.pos >= r.total {
		r.active = false
	}
	return v
}

// dbToGain converts a decibel attenuation (negative for reduction) to a
// linear gain multiplier.
func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// gainToDB converts a linear gain multiplier to decibels. gainToDB(0) is
// negative infinity.
func gainToDB(gain float64) float64 {
	if gain <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(gain)
}

// DBToGain and GainToDB are the exported forms, used by callers that report
// duck depth in decibels (profiles, status APIs).
func DBToGain(db float64) float64  { return dbToGain(db) }
func GainToDB(gain float64) float64 { return gainToDB(gain) }
