package audioproc

import (
	"encoding/binary"
	"sync"
)

// Profile names a duck depth. Custom profiles carry an explicit decibel
// value instead of one of the three presets.
type Profile struct {
	Name        string
	ReductionDB float64
}

var (
	ProfileSoft   = Profile{Name: "soft", ReductionDB: -6}
	ProfileMedium = Profile{Name: "medium", ReductionDB: -12}
	ProfileHard   = Profile{Name: "hard", ReductionDB: -18}
)

// CustomProfile builds a Profile with an arbitrary reduction in decibels.
func CustomProfile(db float64) Profile {
	return Profile{Name: "custom", ReductionDB: db}
}

const (
	defaultRampUpMs   = 50
	defaultRampDownMs = 150
)

// Processor applies ducking to one speaker's outgoing audio stream.
type Processor struct {
	mu sync.Mutex

	sampleRate int
	channels   int

	current float64
	ramp    gainRamp
}

// NewProcessor constructs a Processor for a stream at sampleRate with the
// given channel count, starting at unity gain.
func NewProcessor(sampleRate, channels int) *Processor {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Processor{sampleRate: sampleRate, channels: channels, current: 1.0, ramp: gainRamp{to: 1.0}}
}

// StartDucking begins attenuating toward profile's target gain. If
// immediate is true the gain jumps with no ramp; otherwise it ramps over
// rampMs (0 uses the 50ms default) using curve.
func (p *Processor) StartDucking(profile Profile, rampMs int, curve Curve, immediate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := dbToGain(profile.ReductionDB)
	if immediate {
		p.current = target
		p.ramp.to = target
		p.ramp.active = false
		return
	}
	if rampMs <= 0 {
		rampMs = defaultRampUpMs
	}
	if curve == "" {
		curve = CurveLinear
	}
	samples := p.samplesFor(rampMs)
	p.ramp.start(p.current, target, samples, curve)
}

// StopDucking restores unity gain, ramping over rampMs (0 uses the 150ms
// default, slower than the duck-in ramp) unless immediate.
func (p *Processor) StopDucking(rampMs int, curve Curve, immediate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if immediate {
		p.current = 1.0
		p.ramp.to = 1.0
		p.ramp.active = false
		return
	}
	if rampMs <= 0 {
		rampMs = defaultRampDownMs
	}
	if curve == "" {
		curve = CurveLinear
	}
	samples := p.samplesFor(rampMs)
	p.ramp.start(p.current, 1.0, samples, curve)
}

func (p *Processor) samplesFor(ms int) int {
	return p.sampleRate * p.channels * ms / 1000
}

// Process applies the current gain (or the active ramp) to a buffer of
// little-endian 16-bit PCM samples, returning a newly allocated buffer of
// identical length. A trailing odd byte, if present, is copied unchanged.
func (p *Processor) Process(buf []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ramp.active && p.current == 1.0 {
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	}

	out := make([]byte, len(buf))
	n := len(buf) / 2
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
		var gain float64
		if p.ramp.active {
			gain = p.ramp.next()
			p.current = gain
		} else {
			gain = p.current
		}
		scaled := float64(sample) * gain
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(roundHalfAwayFromZero(scaled))))
	}
	if len(buf)%2 == 1 {
		out[len(out)-1] = buf[len(buf)-1]
	}
	if !p.ramp.active {
		p.current = p.ramp.to
	}
	return out
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}

// IsDucking reports whether the processor is currently attenuated or
// ramping toward attenuation.
func (p *Processor) IsDucking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current < 0.99 || p.ramp.to < 0.99
}

// IsRamping reports whether a gain ramp is in flight.
func (p *Processor) IsRamping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ramp.active
}

// CurrentGain returns the processor's linear gain.
func (p *Processor) CurrentGain() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// CurrentGainDB returns the processor's gain in decibels.
func (p *Processor) CurrentGainDB() float64 {
	return gainToDB(p.CurrentGain())
}
