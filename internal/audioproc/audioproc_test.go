package audioproc

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toneBuffer(n int, amplitude int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(amplitude))
	}
	return buf
}

func TestProcessor_PassthroughAtUnityGain(t *testing.T) {
	p := NewProcessor(48000, 1)
	in := toneBuffer(100, 12345)
	out := p.Process(in)
	assert.Equal(t, in, out)
	assert.False(t, p.IsDucking())
}

func TestProcessor_ImmediateDuckAppliesFullyAtOnce(t *testing.T) {
	p := NewProcessor(48000, 1)
	p.StartDucking(ProfileHard, 0, CurveLinear, true)
	assert.True(t, p.IsDucking())
	assert.False(t, p.IsRamping())
	assert.InDelta(t, dbToGain(-18), p.CurrentGain(), 1e-9)
}

func TestProcessor_RampedDuckReachesTargetAndClearsRamp(t *testing.T) {
	p := NewProcessor(1000, 1) // 1000 samples/sec so 50ms == 50 samples
	p.StartDucking(ProfileMedium, 50, CurveLinear, false)
	require.True(t, p.IsRamping())
	buf := toneBuffer(50, 1000)
	p.Process(buf)
	assert.False(t, p.IsRamping())
	assert.InDelta(t, dbToGain(-12), p.CurrentGain(), 1e-6)
}

func TestProcessor_OutputLengthMatchesInputIncludingOddTrailingByte(t *testing.T) {
	p := NewProcessor(48000, 1)
	p.StartDucking(ProfileSoft, 10, CurveLinear, false)
	in := make([]byte, 21) // 10 full samples + 1 trailing byte
	for i := range in {
		in[i] = byte(i)
	}
	out := p.Process(in)
	require.Len(t, out, len(in))
	assert.Equal(t, in[20], out[20])
}

func TestProcessor_OutputNeverClips(t *testing.T) {
	p := NewProcessor(48000, 1)
	// gain > 1 is not reachable via the public API, so this just guards the
	// saturation branch stays correct for full-scale input at unity gain.
	in := toneBuffer(10, 32767)
	out := p.Process(in)
	for i := 0; i < len(out)/2; i++ {
		s := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		assert.LessOrEqual(t, int(s), 32767)
		assert.GreaterOrEqual(t, int(s), -32768)
	}
}

func TestGainDBRoundTrip(t *testing.T) {
	for _, db := range []float64{-6, -12, -18, -3.5, 0} {
		gain := dbToGain(db)
		assert.InDelta(t, db, gainToDB(gain), 1e-9)
	}
	assert.True(t, math.IsInf(gainToDB(0), -1))
}

func TestCurve_ExponentialAndLogarithmicAreMonotoneOverUnitInterval(t *testing.T) {
	var lastExp, lastLog float64
	for i := 0; i <= 10; i++ {
		p := float64(i) / 10
		e := CurveExponential.apply(p)
		l := CurveLogarithmic.apply(p)
		assert.GreaterOrEqual(t, e, lastExp)
		assert.GreaterOrEqual(t, l, lastLog)
		lastExp, lastLog = e, l
	}
	assert.InDelta(t, 0, CurveExponential.apply(0), 1e-9)
	assert.InDelta(t, 1, CurveExponential.apply(1), 1e-9)
	assert.InDelta(t, 0, CurveLogarithmic.apply(0), 1e-9)
	assert.InDelta(t, 1, CurveLogarithmic.apply(1), 1e-9)
}

func TestProcessor_StopDuckingRestoresUnityGain(t *testing.T) {
	p := NewProcessor(1000, 1)
	p.StartDucking(ProfileHard, 0, CurveLinear, true)
	p.StopDucking(50, CurveLinear, false)
	buf := toneBuffer(50, 500)
	p.Process(buf)
	assert.False(t, p.IsRamping())
	assert.InDelta(t, 1.0, p.CurrentGain(), 1e-6)
	assert.False(t, p.IsDucking())
}
