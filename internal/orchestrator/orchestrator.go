// Package orchestrator wires together the per-connection Session (VAD,
// router, ducking, barge-in) and the process-scoped state shared across
// every session: the session map, the thinking timer, and the shared-screen
// value, each mutated under a single-writer discipline.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/atomic"

	"github.com/orbtalk/orb/internal/adapters/llm"
	"github.com/orbtalk/orb/internal/adapters/stt"
	"github.com/orbtalk/orb/internal/adapters/tts"
	"github.com/orbtalk/orb/internal/config"
	"github.com/orbtalk/orb/internal/frames"
	"github.com/orbtalk/orb/internal/session"
	"github.com/orbtalk/orb/internal/transport"
)

// Orchestrator owns every live Session and the process-wide thinking timer
// and shared screen.
type Orchestrator struct {
	cfg       config.Config
	log       *slog.Logger
	transport transport.Transport

	sttPort  stt.Port
	ttsPorts map[session.SpeakerID]tts.Port
	llmPort  llm.Port

	mu            sync.Mutex
	sessions      map[string]*Session
	thinkingTimer *time.Timer
	sharedScreen  session.SharedScreen

	shuttingDown atomic.Bool
}

// New constructs an Orchestrator bound to one shared transport. STT/TTS
// ports are attached afterward via SetSTT/SetTTS once they have been
// constructed with this Orchestrator's callback methods.
func New(cfg config.Config, t transport.Transport, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:          cfg,
		log:          log.With("component", "orchestrator"),
		transport:    t,
		ttsPorts:     make(map[session.SpeakerID]tts.Port),
		sessions:     make(map[string]*Session),
		sharedScreen: session.Conversation(),
	}
}

// SetSTT attaches the shared STT adapter, constructed with STTCallbacks().
func (o *Orchestrator) SetSTT(p stt.Port) { o.sttPort = p }

// SetTTS attaches speaker's TTS adapter, constructed with
// TTSCallbacks(speaker).
func (o *Orchestrator) SetTTS(speaker session.SpeakerID, p tts.Port) { o.ttsPorts[speaker] = p }

// SetLLM attaches the optional language-model port used to advance an
// addressed agent's turn. Sessions with no LLM port configured leave
// addressed agents silent.
func (o *Orchestrator) SetLLM(p llm.Port) { o.llmPort = p }

// STTCallbacks returns the callback set an STT adapter should be
// constructed with so its events reach the right session.
func (o *Orchestrator) STTCallbacks() stt.Callbacks {
	return stt.Callbacks{
		OnTranscript: func(sessionID, text string, isFinal bool) {
			o.withSession(sessionID, func(s *Session) { s.onTranscript(text, isFinal) })
		},
		OnError: func(sessionID string, err error) {
			o.log.Warn("stt_adapter_error", "session", sessionID, "err", err)
			o.withSession(sessionID, func(s *Session) { s.sendAck("stt error") })
		},
	}
}

// TTSCallbacks returns the callback set speaker's TTS adapter should be
// constructed with so its events reach the right session.
func (o *Orchestrator) TTSCallbacks(speaker session.SpeakerID) tts.Callbacks {
	return tts.Callbacks{
		OnChunk: func(sessionID string, sp session.SpeakerID, pcm []byte) {
			o.withSession(sessionID, func(s *Session) { s.onTTSChunk(sp, pcm) })
		},
		OnComplete: func(sessionID string, sp session.SpeakerID) {
			o.withSession(sessionID, func(s *Session) { s.onTTSComplete(sp) })
		},
		OnError: func(sessionID string, sp session.SpeakerID, err error) {
			o.withSession(sessionID, func(s *Session) { s.onTTSError(sp, err) })
		},
	}
}

func (o *Orchestrator) withSession(sessionID string, fn func(*Session)) {
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if ok {
		fn(s)
	}
}

// Run dispatches inbound frames from the transport until ctx is cancelled
// or the transport's receive channel closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-o.transport.Recv():
			if !ok {
				return nil
			}
			o.dispatch(ctx, f)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, f frames.Frame) {
	streamID := f.Meta()[frames.MetaStreamID]
	if streamID == "" {
		return
	}
	switch fr := f.(type) {
	case frames.SystemFrame:
		switch fr.Name() {
		case "hello":
			if _, err := o.register(ctx, streamID); err != nil {
				o.log.Warn("register_failed", "session", streamID, "err", err)
			}
		case "client.toggle-autopilot":
			o.withSession(streamID, func(s *Session) { s.onToggleAutopilot(fr.Meta()["value"] == "true") })
		case "client.request-state":
			o.withSession(streamID, func(s *Session) { s.sendSnapshot() })
		case "disconnect", "call_end":
			o.disconnect(streamID)
		}
	case frames.AudioFrame:
		o.withSession(streamID, func(s *Session) { s.onAudioChunk(fr.RawPayload()) })
	}
}

// register creates a Session for streamID, rejecting a duplicate register
// as an internal invariant violation.
func (o *Orchestrator) register(ctx context.Context, streamID string) (*Session, error) {
	o.mu.Lock()
	if _, exists := o.sessions[streamID]; exists {
		o.mu.Unlock()
		return nil, errDoubleRegister(streamID)
	}
	o.mu.Unlock()

	sess, err := o.newSession(ctx, streamID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.sessions[streamID] = sess
	o.mu.Unlock()
	return sess, nil
}

// disconnect runs the disconnect sequence for one session and, if it was
// the last live session, resets the process-wide thinking state.
func (o *Orchestrator) disconnect(streamID string) {
	o.mu.Lock()
	sess, ok := o.sessions[streamID]
	if ok {
		delete(o.sessions, streamID)
	}
	remaining := len(o.sessions)
	o.mu.Unlock()
	if !ok {
		return
	}
	sess.disconnect()

	if remaining == 0 {
		o.mu.Lock()
		if o.thinkingTimer != nil {
			o.thinkingTimer.Stop()
			o.thinkingTimer = nil
		}
		o.sharedScreen = session.Conversation()
		o.mu.Unlock()
	}
}

// Drain implements runner.Drainer: disconnect every live session within a
// fixed deadline, for use as the drain phase of process shutdown.
func (o *Orchestrator) Drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return o.Shutdown(ctx)
}

// Shutdown disconnects every live session concurrently, bounded by ctx's
// deadline. A session already mid-shutdown from a prior call is skipped.
// Errors from every session's own adapter/recorder/event-log teardown are
// aggregated rather than short-circuited on the first failure.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if !o.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	defer o.shuttingDown.Store(false)

	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		sessions = append(sessions, sess)
	}
	o.mu.Unlock()

	p := pool.New().WithErrors().WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		p.Go(func(ctx context.Context) error {
			err := sess.disconnect()
			o.mu.Lock()
			delete(o.sessions, sess.streamID)
			o.mu.Unlock()
			return err
		})
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enterThinking is the single writer for the process-wide thinking timer
// and shared-screen value.
func (o *Orchestrator) enterThinking(target session.SpeakerID, duration time.Duration) {
	o.mu.Lock()
	if o.thinkingTimer != nil {
		o.thinkingTimer.Stop()
	}
	now := time.Now()
	o.sharedScreen = session.Thinking(target, duration, now)
	started := now
	o.thinkingTimer = time.AfterFunc(duration, func() { o.onThinkingExpire(started) })
	o.mu.Unlock()

	other := session.Host
	if target == session.Host {
		other = session.Guest
	}
	o.broadcastOrb(target, session.OrbThinking)
	o.broadcastOrb(other, session.OrbMuted)
	o.broadcast("mode.thinking", map[string]any{"speaker": target, "durationMs": duration.Milliseconds(), "startedAt": now})
	o.broadcast("shared-screen.state", o.currentSharedScreen())
}

func (o *Orchestrator) onThinkingExpire(started time.Time) {
	o.mu.Lock()
	if o.sharedScreen.Mode != session.ScreenThinking || !o.sharedScreen.StartedAt.Equal(started) {
		o.mu.Unlock()
		return
	}
	o.sharedScreen = session.Conversation()
	o.thinkingTimer = nil
	o.mu.Unlock()

	o.broadcastOrb(session.Host, session.OrbListening)
	o.broadcastOrb(session.Guest, session.OrbListening)
	o.broadcast("mode.normal", map[string]any{"endedAt": time.Now()})
	o.broadcast("shared-screen.state", o.currentSharedScreen())
}

func (o *Orchestrator) currentSharedScreen() session.SharedScreen {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sharedScreen
}

// broadcast fans a message out to every live session's client.
func (o *Orchestrator) broadcast(msgType string, payload any) {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()
	for _, s := range sessions {
		s.send(msgType, payload)
	}
}

func (o *Orchestrator) broadcastOrb(speaker session.SpeakerID, state session.OrbState) {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()
	for _, s := range sessions {
		s.mu.Lock()
		s.setOrbLocked(speaker, state)
		s.mu.Unlock()
	}
}

func newID() string { return uuid.NewString() }
