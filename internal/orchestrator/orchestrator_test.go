package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmmock "github.com/orbtalk/orb/internal/adapters/llm/mock"
	sttmock "github.com/orbtalk/orb/internal/adapters/stt/mock"
	"github.com/orbtalk/orb/internal/adapters/tts"
	ttsmock "github.com/orbtalk/orb/internal/adapters/tts/mock"
	"github.com/orbtalk/orb/internal/config"
	"github.com/orbtalk/orb/internal/frames"
	"github.com/orbtalk/orb/internal/session"
	mocktransport "github.com/orbtalk/orb/internal/transport/mock"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		SampleRate: 48000,
		Router:     config.RouterConfig{HostAlias: "claude", GuestAlias: "guest", HumanAlias: "basil"},
		Storage:    config.StorageConfig{Dir: t.TempDir()},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *mocktransport.Transport) {
	tr := mocktransport.New()
	orch := New(testConfig(t), tr, nil)
	orch.SetSTT(sttmock.New("hey claude what's the weather", orch.STTCallbacks()))
	orch.SetTTS(session.Host, ttsmock.New(session.Host, tts.Config{SampleRate: 48000, Channels: 1}, orch.TTSCallbacks(session.Host)))
	orch.SetTTS(session.Guest, ttsmock.New(session.Guest, tts.Config{SampleRate: 48000, Channels: 1}, orch.TTSCallbacks(session.Guest)))
	orch.SetLLM(llmmock.New("here's the forecast"))
	return orch, tr
}

func drainSent(tr *mocktransport.Transport, timeout time.Duration) []frames.Frame {
	var out []frames.Frame
	deadline := time.After(timeout)
	for {
		select {
		case f := <-tr.Sent():
			out = append(out, f)
		case <-deadline:
			return out
		}
	}
}

func TestRegister_CreatesSessionAndSendsAck(t *testing.T) {
	orch, tr := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := orch.register(ctx, "stream-1")
	require.NoError(t, err)
	require.NotNil(t, sess)

	found := false
	for _, f := range drainSent(tr, 100*time.Millisecond) {
		tf, ok := f.(frames.TextFrame)
		if ok && tf.Meta()[frames.MetaMsgType] == "server.ack" {
			found = true
		}
	}
	assert.True(t, found, "expected a server.ack frame after register")
}

func TestRegister_DuplicateStreamIDFails(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orch.register(ctx, "stream-dup")
	require.NoError(t, err)

	_, err = orch.register(ctx, "stream-dup")
	require.Error(t, err)
}

func TestDispatch_HelloRegistersSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()

	f := frames.NewSystemFrame("stream-hello", 1, "hello", nil)
	orch.dispatch(ctx, f)

	orch.mu.Lock()
	_, ok := orch.sessions["stream-hello"]
	orch.mu.Unlock()
	assert.True(t, ok)
}

func TestDispatch_DisconnectRemovesSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := orch.register(ctx, "stream-2")
	require.NoError(t, err)

	orch.dispatch(ctx, frames.NewSystemFrame("stream-2", 2, "disconnect", nil))

	orch.mu.Lock()
	_, ok := orch.sessions["stream-2"]
	orch.mu.Unlock()
	assert.False(t, ok)
}

func TestEnterThinking_BroadcastsToAllSessions(t *testing.T) {
	orch, tr := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := orch.register(ctx, "stream-3")
	require.NoError(t, err)
	drainSent(tr, 50*time.Millisecond)

	orch.enterThinking(session.Host, 50*time.Millisecond)

	sawThinking, sawNormal := false, false
	for _, f := range drainSent(tr, 300*time.Millisecond) {
		tf, ok := f.(frames.TextFrame)
		if !ok {
			continue
		}
		switch tf.Meta()[frames.MetaMsgType] {
		case "mode.thinking":
			sawThinking = true
		case "mode.normal":
			sawNormal = true
		}
	}
	assert.True(t, sawThinking)
	assert.True(t, sawNormal, "expected thinking timer to expire and broadcast mode.normal")
}

func TestShutdown_DisconnectsAllSessions(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := orch.register(ctx, "stream-4")
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, orch.Shutdown(shutdownCtx))

	orch.mu.Lock()
	count := len(orch.sessions)
	orch.mu.Unlock()
	assert.Zero(t, count)
}
