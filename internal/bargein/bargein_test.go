package bargein

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbtalk/orb/internal/session"
)

type recorder struct {
	mu        sync.Mutex
	starts    []Event
	completes []Event
	cancels   []Event
	ducking   []bool
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnBargeInStart:     func(e Event) { r.mu.Lock(); r.starts = append(r.starts, e); r.mu.Unlock() },
		OnBargeInComplete:  func(e Event) { r.mu.Lock(); r.completes = append(r.completes, e); r.mu.Unlock() },
		OnBargeInCancelled: func(e Event) { r.mu.Lock(); r.cancels = append(r.cancels, e); r.mu.Unlock() },
		OnDuckingRequest:   func(_ []session.SpeakerID, active bool) { r.mu.Lock(); r.ducking = append(r.ducking, active); r.mu.Unlock() },
	}
}

func (r *recorder) snapshot() (starts, completes, cancels int, ducking []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts), len(r.completes), len(r.cancels), append([]bool(nil), r.ducking...)
}

func TestImmediateMode_InterruptsWithoutDucking(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeImmediate}, rec.callbacks())

	m.OnSpeechStart(session.Host, 0.9)
	m.OnSpeechStart(session.Human, 0.95) // human always authorized

	starts, completes, _, ducking := rec.snapshot()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, completes)
	assert.Empty(t, ducking, "immediate mode must not request ducking")
}

func TestGracefulMode_CancelledIfInterrupterStopsBeforeGraceExpires(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeGraceful, GracePeriodMs: 40, DuckingEnabled: true}, rec.callbacks())

	m.OnSpeechStart(session.Host, 0.9)
	m.OnSpeechStart(session.Human, 0.9)
	m.OnSpeechEnd(session.Human, 0.9)

	time.Sleep(80 * time.Millisecond)

	starts, completes, cancels, ducking := rec.snapshot()
	assert.Equal(t, 0, starts)
	assert.Equal(t, 0, completes)
	assert.Equal(t, 1, cancels)
	require.Len(t, ducking, 2)
	assert.True(t, ducking[0])
	assert.False(t, ducking[1])
}

func TestGracefulMode_ExecutesInterruptionWhenStillSpeakingAtExpiry(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeGraceful, GracePeriodMs: 20, DuckingEnabled: true}, rec.callbacks())

	m.OnSpeechStart(session.Guest, 0.9)
	m.OnSpeechStart(session.Human, 0.9)

	time.Sleep(60 * time.Millisecond)

	starts, completes, cancels, _ := rec.snapshot()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, completes)
	assert.Equal(t, 0, cancels)
}

func TestDisabledMode_NeverInterrupts(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeDisabled}, rec.callbacks())
	m.OnSpeechStart(session.Host, 0.9)
	m.OnSpeechStart(session.Human, 0.9)
	starts, completes, cancels, _ := rec.snapshot()
	assert.Zero(t, starts)
	assert.Zero(t, completes)
	assert.Zero(t, cancels)
}

func TestAuthorization_LowerPriorityCannotInterruptHigher(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeImmediate}, rec.callbacks())
	m.SetPriority(session.Host, PriorityHigh)
	m.SetPriority(session.Guest, PriorityLow)

	m.OnSpeechStart(session.Host, 0.9)
	m.OnSpeechStart(session.Guest, 0.9) // guest cannot interrupt higher-priority host

	starts, _, _, _ := rec.snapshot()
	assert.Zero(t, starts)
}

func TestAuthorization_DisallowedTargetBlocksInterruption(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeImmediate}, rec.callbacks())
	m.SetAllowInterruption(session.Host, false)

	m.OnSpeechStart(session.Host, 0.9)
	m.OnSpeechStart(session.Human, 0.9)

	starts, _, _, _ := rec.snapshot()
	assert.Zero(t, starts, "human cannot interrupt a speaker with allow_interruption=false")
}

func TestHistory_BoundedAtOneHundred(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeImmediate}, rec.callbacks())
	for i := 0; i < 60; i++ {
		m.OnSpeechStart(session.Host, 0.9)
		m.OnSpeechStart(session.Human, 0.9)
		m.OnSpeechEnd(session.Human, 0.9)
		m.OnSpeechEnd(session.Host, 0.9)
	}
	assert.LessOrEqual(t, len(m.History()), maxHistory)
}

func TestStats_AveragesCompletedConfidence(t *testing.T) {
	rec := &recorder{}
	m := New(Config{Mode: ModeImmediate}, rec.callbacks())
	m.OnSpeechStart(session.Host, 0.9)
	m.OnSpeechStart(session.Human, 1.0)
	m.OnSpeechEnd(session.Human, 1.0)
	m.OnSpeechEnd(session.Host, 0.9)

	m.OnSpeechStart(session.Guest, 0.9)
	m.OnSpeechStart(session.Human, 0.6)

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalCompletions)
	assert.InDelta(t, 0.8, stats.AverageConfidence, 1e-9)
}
