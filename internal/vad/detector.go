// Package vad implements the enhanced per-frame voice activity detector:
// RMS energy over 16-bit PCM frames, an adaptive noise floor, a smoothed
// multi-factor confidence score, and a hysteresis-gated speaking/
// not-speaking state machine.
package vad

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
)

// Callbacks receives speech-start / speech-end edges as the detector's state
// machine transitions.
type Callbacks struct {
	OnSpeechStart func(confidence float64)
	OnSpeechEnd   func(confidence float64)
}

// State is a read-only snapshot of the detector's internal state, exposed
// for diagnostics.
type State struct {
	SampleRate            int
	FrameSamples          int
	SpeechThreshold       float64
	ReleaseThreshold      float64
	SpeechFramesRequired  int
	SilenceFramesRequired int
	NoiseFloor            float64
	PeakEnergy            float64
	CurrentConfidence     float64
	Speaking              bool
	SpeechFrameCount      int
	SilenceFrameCount     int
}

// Detector is the enhanced VAD for one participant's audio stream.
type Detector struct {
	mu  sync.Mutex
	cfg Config
	cb  Callbacks

	frameSamples          int
	speechThreshold       float64
	releaseThreshold      float64
	speechFramesRequired  int
	silenceFramesRequired int

	noiseFloor float64
	peakEnergy float64

	energyHistory     *ring
	confidenceHistory *ring
	currentConfidence float64

	speaking          bool
	speechFrameCount  int
	silenceFrameCount int

	log *slog.Logger
}

// New constructs a Detector. Zero-valued fields in cfg take sane defaults.
func New(cfg Config, cb Callbacks, log *slog.Logger) *Detector {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	frameSamples := cfg.SampleRate * cfg.FrameMS / 1000
	noiseFloor := 0.01
	d := &Detector{
		cfg:                   cfg,
		cb:                    cb,
		frameSamples:          frameSamples,
		noiseFloor:            noiseFloor,
		speechThreshold:       noiseFloor * 2.5,
		releaseThreshold:      noiseFloor * 1.5,
		speechFramesRequired:  ceilDiv(cfg.SpeechFramesRequiredMS, cfg.FrameMS),
		silenceFramesRequired: ceilDiv(cfg.SilenceFramesRequiredMS, cfg.FrameMS),
		energyHistory:         newRing(historyCapacity),
		confidenceHistory:     newRing(historyCapacity),
		currentConfidence:     0,
		log:                   log,
	}
	return d
}

// Process consumes a buffer of little-endian 16-bit mono PCM, framing it
// into fixed-size chunks and running the per-frame algorithm on each. A
// zero-length buffer is a no-op. Frames shorter than one full frame (after
// the last complete frame is consumed) are ignored with a warning; Process
// never returns an error.
func (d *Detector) Process(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	frameBytes := d.frameSamples * 2
	if frameBytes <= 0 {
		return
	}
	off := 0
	for off+frameBytes <= len(pcm) {
		d.processFrame(pcm[off : off+frameBytes])
		off += frameBytes
	}
	if rem := len(pcm) - off; rem > 0 {
		if rem%2 != 0 {
			d.log.Warn("vad_frame_dropped", "reason", "odd_trailing_byte", "bytes", rem)
		} else {
			d.log.Warn("vad_frame_dropped", "reason", "partial_trailing_frame", "bytes", rem)
		}
	}
}

func (d *Detector) processFrame(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	samples := decodeInt16LE(frame)
	rms := rmsOf(samples)

	// 2. push to energy history.
	d.energyHistory.push(rms)

	// 3. peak tracker with slow decay.
	d.peakEnergy = math.Max(d.peakEnergy*0.999, rms)

	// 4. adaptive noise floor.
	if d.cfg.Adaptive && !d.speaking && rms < d.speechThreshold {
		d.noiseFloor = clamp(d.noiseFloor*(1-d.cfg.Alpha)+rms*d.cfg.Alpha, 0.0001, 0.1)
		d.speechThreshold = d.noiseFloor * 2.5
		d.releaseThreshold = d.noiseFloor * 1.5
	}

	// 5. sub-confidences.
	energyConf := d.energyConfidence()
	consistencyConf := d.consistencyConfidence()
	spectralConf := d.spectralConfidence(samples)
	overall := 0.4*energyConf + 0.4*consistencyConf + 0.2*spectralConf

	// 6. temporal smoothing.
	d.currentConfidence = 0.85*d.currentConfidence + 0.15*overall
	d.confidenceHistory.push(d.currentConfidence)

	// 7. confidence-gated effective threshold.
	effective := d.speechThreshold
	if d.cfg.ConfidenceGating {
		effective = d.speechThreshold * (1 - 0.3*d.currentConfidence)
	}

	// 8. state machine.
	d.transition(rms, effective)
}

func (d *Detector) transition(rms, effective float64) {
	if !d.speaking {
		if rms >= effective {
			d.speechFrameCount++
			d.silenceFrameCount = 0
			confOK := !d.cfg.ConfidenceGating || d.currentConfidence >= 0.4
			if d.speechFrameCount >= d.speechFramesRequired && confOK {
				d.speaking = true
				d.speechFrameCount = 0
				conf := d.currentConfidence
				if d.cb.OnSpeechStart != nil {
					d.cb.OnSpeechStart(conf)
				}
			}
		} else if rms > d.releaseThreshold {
			// intermediate region: decay slowly.
			if d.speechFrameCount > 0 {
				d.speechFrameCount--
			}
		} else {
			d.speechFrameCount = 0
		}
		return
	}

	// speaking == true
	if rms <= d.releaseThreshold {
		d.silenceFrameCount++
		if d.silenceFrameCount >= d.silenceFramesRequired {
			confBeforeHalving := d.currentConfidence
			d.speaking = false
			d.speechFrameCount = 0
			d.silenceFrameCount = 0
			d.currentConfidence /= 2
			if d.cb.OnSpeechEnd != nil {
				d.cb.OnSpeechEnd(confBeforeHalving)
			}
		}
	} else {
		d.silenceFrameCount = 0
	}
}

func (d *Detector) energyConfidence() float64 {
	samples := d.energyHistory.last(10)
	if len(samples) == 0 {
		return 0.5
	}
	mean := meanOf(samples)
	floor := math.Max(d.noiseFloor, 0.0001)
	snrDB := 20 * math.Log10(math.Max(mean, 1e-12)/floor)
	return clamp01((snrDB - 5) / 15)
}

func (d *Detector) consistencyConfidence() float64 {
	samples := d.energyHistory.last(10)
	if len(samples) < 5 {
		return 0.5
	}
	mean := meanOf(samples)
	if mean <= 0 {
		return 0.5
	}
	sd := stddevOf(samples, mean)
	cv := sd / mean
	return clamp01(1 - (cv-0.3)/0.7)
}

func (d *Detector) spectralConfidence(samples []int16) float64 {
	if !d.cfg.SpectralEnabled {
		return 0.5
	}
	if d.cfg.Spectral == nil {
		return 0.7
	}
	return clamp01(d.cfg.Spectral.Score(samples, d.cfg.SampleRate))
}

// Snapshot returns a read-only copy of the detector's state.
func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		SampleRate:            d.cfg.SampleRate,
		FrameSamples:          d.frameSamples,
		SpeechThreshold:       d.speechThreshold,
		ReleaseThreshold:      d.releaseThreshold,
		SpeechFramesRequired:  d.speechFramesRequired,
		SilenceFramesRequired: d.silenceFramesRequired,
		NoiseFloor:            d.noiseFloor,
		PeakEnergy:            d.peakEnergy,
		CurrentConfidence:     d.currentConfidence,
		Speaking:              d.speaking,
		SpeechFrameCount:      d.speechFrameCount,
		SilenceFrameCount:     d.silenceFrameCount,
	}
}

func decodeInt16LE(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return out
}

func rmsOf(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		norm := float64(s) / 32768.0
		sum += norm * norm
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddevOf(v []float64, mean float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(v)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
