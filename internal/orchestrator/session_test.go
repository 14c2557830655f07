package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbtalk/orb/internal/frames"
	"github.com/orbtalk/orb/internal/session"
)

func TestSession_AddressedAgentTurnReachesTTSAudio(t *testing.T) {
	orch, tr := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := orch.register(ctx, "stream-flow")
	require.NoError(t, err)
	drainSent(tr, 50*time.Millisecond) // discard the initial ack + snapshot

	sess.onAudioChunk([]byte{0, 0, 0, 0})

	var audioFrame frames.AudioFrame
	found := false
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case f := <-tr.Sent():
			if af, ok := f.(frames.AudioFrame); ok && af.Meta()[frames.MetaSpeaker] == string(session.Host) {
				audioFrame = af
				found = true
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	require.True(t, found, "expected an audio frame tagged for the host speaker")
	assert.NotEmpty(t, audioFrame.RawPayload())
}

func TestSession_OnHumanSpeechStartMutesAgentsAndRestoresOnEnd(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	sess, err := orch.register(ctx, "stream-vad")
	require.NoError(t, err)

	sess.onHumanSpeechStart(0.95)
	sess.mu.Lock()
	assert.Equal(t, session.OrbSpeaking, sess.orbStates[session.Human])
	assert.Equal(t, session.OrbMuted, sess.orbStates[session.Host])
	assert.Equal(t, session.OrbMuted, sess.orbStates[session.Guest])
	sess.mu.Unlock()

	sess.onHumanSpeechEnd(0.95)
	sess.mu.Lock()
	assert.Equal(t, session.OrbListening, sess.orbStates[session.Human])
	sess.mu.Unlock()
}

func TestSession_TriggerAgentTurnNoopsWithoutLLMPort(t *testing.T) {
	orch, tr := newTestOrchestrator(t)
	orch.llmPort = nil
	ctx := context.Background()
	sess, err := orch.register(ctx, "stream-noop")
	require.NoError(t, err)
	drainSent(tr, 50*time.Millisecond)

	sess.triggerAgentTurn([]session.SpeakerID{session.Host}, "what's the weather")

	select {
	case f := <-tr.Sent():
		t.Fatalf("expected no outbound frame with no LLM port, got %#v", f)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSession_Disconnect_StopsAdaptersAndSendsRecordingReady(t *testing.T) {
	orch, tr := newTestOrchestrator(t)
	ctx := context.Background()
	sess, err := orch.register(ctx, "stream-disc")
	require.NoError(t, err)
	drainSent(tr, 50*time.Millisecond)

	sess.disconnect()

	found := false
	for _, f := range drainSent(tr, 200*time.Millisecond) {
		tf, ok := f.(frames.TextFrame)
		if ok && tf.Meta()[frames.MetaMsgType] == "recording.ready" {
			found = true
		}
	}
	assert.True(t, found)

	// disconnect is idempotent
	sess.disconnect()
}
