package vad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toneFrame builds one frame of little-endian PCM16 at the given amplitude
// (0..1 of full scale), alternating +amp/-amp to keep the RMS stable and
// simple to reason about.
func toneFrame(samples int, amp float64) []byte {
	buf := make([]byte, samples*2)
	v := int16(amp * 32767)
	for i := 0; i < samples; i++ {
		s := v
		if i%2 == 1 {
			s = -v
		}
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
	}
	return buf
}

func silenceFrame(samples int) []byte {
	return make([]byte, samples*2)
}

func newTestDetector(cb Callbacks) *Detector {
	return New(Config{
		SampleRate:              1000,
		FrameMS:                 20,
		Adaptive:                true,
		ConfidenceGating:        false,
		SpeechFramesRequiredMS:  60,
		SilenceFramesRequiredMS: 100,
	}, cb, nil)
}

func TestDetector_HysteresisRequiresConsecutiveFrames(t *testing.T) {
	var starts, ends int
	d := newTestDetector(Callbacks{
		OnSpeechStart: func(float64) { starts++ },
		OnSpeechEnd:   func(float64) { ends++ },
	})
	samples := d.Snapshot().FrameSamples
	require.Greater(t, samples, 0)

	loud := toneFrame(samples, 0.8)
	// two loud frames is short of the 3-frame (60ms/20ms) requirement.
	d.Process(loud)
	d.Process(loud)
	assert.False(t, d.Snapshot().Speaking)
	assert.Equal(t, 0, starts)

	// a third consecutive loud frame crosses the requirement.
	d.Process(loud)
	assert.True(t, d.Snapshot().Speaking)
	assert.Equal(t, 1, starts)

	// five quiet frames meet the 5-frame (100ms/20ms) silence requirement.
	quiet := silenceFrame(samples)
	for i := 0; i < 5; i++ {
		d.Process(quiet)
	}
	assert.False(t, d.Snapshot().Speaking)
	assert.Equal(t, 1, ends)
}

func TestDetector_SpeechThresholdAboveReleaseThreshold(t *testing.T) {
	d := newTestDetector(Callbacks{})
	snap := d.Snapshot()
	assert.Greater(t, snap.SpeechThreshold, snap.ReleaseThreshold)
}

func TestDetector_NoiseFloorStaysWithinBounds(t *testing.T) {
	d := newTestDetector(Callbacks{})
	samples := d.Snapshot().FrameSamples
	// feed a long run of silence; the noise floor should decay but never
	// leave its clamp range.
	for i := 0; i < 500; i++ {
		d.Process(silenceFrame(samples))
	}
	snap := d.Snapshot()
	assert.GreaterOrEqual(t, snap.NoiseFloor, 0.0001)
	assert.LessOrEqual(t, snap.NoiseFloor, 0.1)
}

func TestDetector_IntermediateRegionDoesNotImmediatelyTriggerSpeech(t *testing.T) {
	var starts int
	d := newTestDetector(Callbacks{OnSpeechStart: func(float64) { starts++ }})
	samples := d.Snapshot().FrameSamples
	// rms ~0.02 lies between the release (0.015) and speech (0.025)
	// thresholds derived from the initial 0.01 noise floor.
	mid := toneFrame(samples, 0.02)
	for i := 0; i < 5; i++ {
		d.Process(mid)
	}
	assert.Equal(t, 0, starts, "low-amplitude frames near the noise floor must not trigger speech")
}

func TestDetector_EmptyProcessIsNoop(t *testing.T) {
	d := newTestDetector(Callbacks{})
	before := d.Snapshot()
	d.Process(nil)
	after := d.Snapshot()
	assert.Equal(t, before, after)
}

func TestRing_LastReturnsOldestFirstAfterWrap(t *testing.T) {
	r := newRing(3)
	r.push(1)
	r.push(2)
	r.push(3)
	r.push(4) // overwrites 1
	assert.Equal(t, []float64{2, 3, 4}, r.last(3))
	assert.Equal(t, []float64{3, 4}, r.last(2))
	assert.Equal(t, 3, r.len())
}
