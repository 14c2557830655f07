package vad

import "math"

// historyCapacity bounds the energy/confidence ring buffers.
const historyCapacity = 50

// Config tunes the enhanced VAD. Zero values are replaced with sane
// defaults by New.
type Config struct {
	SampleRate int // default 48000
	FrameMS    int // default 20 (960 samples at 48kHz)

	Adaptive         bool    // adaptive noise-floor tracking
	ConfidenceGating bool    // gate the effective speech threshold on confidence
	SpectralEnabled  bool    // spectral confidence placeholder toggle
	Alpha            float64 // noise-floor smoothing factor, default 0.01

	// SpeechFramesRequiredMS / SilenceFramesRequiredMS override the
	// consecutive-frame durations used to derive frame-count thresholds.
	// Zero uses the defaults (120ms / 220ms).
	SpeechFramesRequiredMS  int
	SilenceFramesRequiredMS int

	Spectral SpectralScorer
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.FrameMS <= 0 {
		c.FrameMS = 20
	}
	if c.Alpha <= 0 {
		c.Alpha = 0.01
	}
	if c.SpeechFramesRequiredMS <= 0 {
		c.SpeechFramesRequiredMS = 120
	}
	if c.SilenceFramesRequiredMS <= 0 {
		c.SilenceFramesRequiredMS = 220
	}
	if c.Spectral == nil {
		c.Spectral = defaultSpectralScorer{}
	}
	return c
}

func ceilDiv(numerator, denom int) int {
	return int(math.Ceil(float64(numerator) / float64(denom)))
}

// SpectralScorer produces a [0,1] voice-likeness score. The default
// implementation is a fixed placeholder; a real deployment may substitute a
// voiced-band energy ratio or pitch tracker.
type SpectralScorer interface {
	Score(frame []int16, sampleRate int) float64
}

type defaultSpectralScorer struct{}

func (defaultSpectralScorer) Score([]int16, int) float64 {
	// Callers gate on Config.SpectralEnabled before consulting this; the
	// value returned when disabled is supplied by the detector, not here.
	return 0.7
}
