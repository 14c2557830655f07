package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/orbtalk/orb/internal/adapters/llm"
	"github.com/orbtalk/orb/internal/adapters/stt"
	"github.com/orbtalk/orb/internal/adapters/tts"
	"github.com/orbtalk/orb/internal/audioproc"
	"github.com/orbtalk/orb/internal/bargein"
	"github.com/orbtalk/orb/internal/errorsx"
	"github.com/orbtalk/orb/internal/eventlog"
	"github.com/orbtalk/orb/internal/frames"
	"github.com/orbtalk/orb/internal/recorder"
	"github.com/orbtalk/orb/internal/redact"
	"github.com/orbtalk/orb/internal/router"
	"github.com/orbtalk/orb/internal/session"
	"github.com/orbtalk/orb/internal/vad"
)

// Session owns everything scoped to one connected client: the VAD tracking
// the human's mic, the command router, per-speaker ducking, the barge-in
// manager mediating the three parties, and the recorder/event-log writers
// for one episode.
type Session struct {
	id       session.ID
	streamID string
	orch     *Orchestrator
	log      *slog.Logger

	vad     *vad.Detector
	router  *router.Router
	duck    *audioproc.Manager
	bargein *bargein.Manager
	events  *eventlog.Log
	rec     *recorder.Recorder

	sttPort stt.Port
	ttsPort map[session.SpeakerID]tts.Port

	mu             sync.Mutex
	orbStates      map[session.SpeakerID]session.OrbState
	orbRestore     map[session.SpeakerID]session.OrbState
	captions       []session.Caption
	autopilot      bool
	activeAgents   map[session.SpeakerID]bool
	humanSpeaking  bool
	duckingActive  bool
	pendingTargets []session.SpeakerID
	closed         bool
}

func (o *Orchestrator) newSession(ctx context.Context, streamID string) (*Session, error) {
	id := session.ID(streamID)
	log := o.log.With("session", streamID)

	ev := eventlog.New(o.cfg.Storage.Dir, streamID, o.cfg.LogFormat == "pretty", log)
	if err := ev.Start(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonEventLogWrite)
	}
	ev.Log(eventlog.Event{Type: "session.start", SessionID: streamID})

	rec := recorder.New(o.cfg.Storage.Dir, streamID)
	if err := rec.Start(); err != nil {
		log.Warn("recorder_start_failed", "err", err)
	}

	sess := &Session{
		id:       id,
		streamID: streamID,
		orch:     o,
		log:      log,
		duck:     audioproc.NewManager(o.cfg.SampleRate, 1),
		events:   ev,
		rec:      rec,
		ttsPort:  make(map[session.SpeakerID]tts.Port),
		orbStates: map[session.SpeakerID]session.OrbState{
			session.Human: session.OrbListening,
			session.Host:  session.OrbListening,
			session.Guest: session.OrbListening,
		},
		activeAgents: make(map[session.SpeakerID]bool),
	}

	sess.vad = vad.New(vad.Config{
		SampleRate:              o.cfg.SampleRate,
		FrameMS:                 o.cfg.VAD.FrameMS,
		Adaptive:                o.cfg.VAD.Adaptive,
		ConfidenceGating:        o.cfg.VAD.ConfidenceGating,
		SpectralEnabled:         o.cfg.VAD.SpectralEnabled,
		Alpha:                   o.cfg.VAD.Alpha,
		SpeechFramesRequiredMS:  o.cfg.VAD.SpeechFramesRequiredMS,
		SilenceFramesRequiredMS: o.cfg.VAD.SilenceFramesRequiredMS,
	}, vad.Callbacks{
		OnSpeechStart: sess.onHumanSpeechStart,
		OnSpeechEnd:   sess.onHumanSpeechEnd,
	}, log)

	sess.router = router.New(router.Aliases{
		Host:  o.cfg.Router.HostAlias,
		Guest: o.cfg.Router.GuestAlias,
		Human: o.cfg.Router.HumanAlias,
	})

	sess.bargein = bargein.New(bargein.Config{
		Mode:              bargein.Mode(o.cfg.BargeIn.Mode),
		GracePeriodMs:     o.cfg.BargeIn.GracePeriodMs,
		SentenceCompletionMaxMs: o.cfg.BargeIn.SentenceCompletionMaxMs,
		DuckingEnabled:    o.cfg.BargeIn.DuckingEnabled,
		DuckingLeadTimeMs: o.cfg.BargeIn.DuckingLeadTimeMs,
	}, bargein.Callbacks{
		OnBargeInStart:     sess.onBargeInStart,
		OnBargeInComplete:  sess.onBargeInComplete,
		OnBargeInCancelled: sess.onBargeInCancelled,
		OnDuckingRequest:   sess.onDuckingRequest,
	})

	if p, ok := o.ttsPorts[session.Host]; ok {
		sess.ttsPort[session.Host] = p
	} else {
		log.Warn("tts_unavailable", "speaker", "host")
	}
	if p, ok := o.ttsPorts[session.Guest]; ok {
		sess.ttsPort[session.Guest] = p
	} else {
		log.Warn("tts_unavailable", "speaker", "guest")
	}
	sess.sttPort = o.sttPort
	if sess.sttPort != nil {
		if err := sess.sttPort.Start(ctx, streamID); err != nil {
			log.Warn("stt_start_failed", "err", err)
			sess.sttPort = nil
		}
	}

	sess.sendAck("connected")
	sess.sendSnapshot()
	return sess, nil
}

// onAudioChunk feeds inbound human audio to the VAD, the recorder, and
// (when configured) the STT adapter.
func (s *Session) onAudioChunk(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.vad.Process(pcm)
	if err := s.rec.WriteAudio(session.Human, pcm); err != nil {
		s.log.Warn("recorder_write_failed", "err", err)
	}
	if s.sttPort != nil {
		if err := s.sttPort.SendAudio(s.streamID, pcm); err != nil {
			s.log.Warn("stt_send_failed", "err", err)
		}
	}
}

func (s *Session) onHumanSpeechStart(confidence float64) {
	s.mu.Lock()
	if s.humanSpeaking {
		s.mu.Unlock()
		return
	}
	s.humanSpeaking = true
	s.duckingActive = true
	s.orbRestore = make(map[session.SpeakerID]session.OrbState, len(s.orbStates))
	for k, v := range s.orbStates {
		s.orbRestore[k] = v
	}
	s.setOrbLocked(session.Human, session.OrbSpeaking)
	s.setOrbLocked(session.Host, session.OrbMuted)
	s.setOrbLocked(session.Guest, session.OrbMuted)
	s.mu.Unlock()

	s.events.Log(eventlog.Event{Type: "vad.speech_start", SessionID: s.streamID, Data: map[string]any{"speaker": session.Human, "confidence": confidence}})
	s.bargein.OnSpeechStart(session.Human, confidence)
}

func (s *Session) onHumanSpeechEnd(confidence float64) {
	s.mu.Lock()
	s.humanSpeaking = false
	s.duckingActive = false
	s.setOrbLocked(session.Human, session.OrbListening)
	for _, speaker := range []session.SpeakerID{session.Host, session.Guest} {
		restored, ok := s.orbRestore[speaker]
		if !ok {
			restored = session.OrbListening
		}
		s.setOrbLocked(speaker, restored)
	}
	s.orbRestore = nil
	s.mu.Unlock()

	s.events.Log(eventlog.Event{Type: "vad.speech_end", SessionID: s.streamID, Data: map[string]any{"speaker": session.Human, "confidence": confidence}})
	s.bargein.OnSpeechEnd(session.Human, confidence)
}

func (s *Session) onBargeInStart(ev bargein.Event) {
	s.events.Log(eventlog.Event{Type: "barge_in.start", SessionID: s.streamID, Data: map[string]any{
		"interrupter": ev.Interrupter, "targets": ev.Targets, "mode": ev.Mode,
	}})
}

func (s *Session) onBargeInComplete(ev bargein.Event) {
	s.mu.Lock()
	for _, target := range ev.Targets {
		if p, ok := s.ttsPort[target]; ok {
			p.Stop(s.streamID)
		}
		delete(s.activeAgents, target)
		s.setOrbLocked(target, session.OrbMuted)
	}
	s.mu.Unlock()
	s.events.Log(eventlog.Event{Type: "barge_in.complete", SessionID: s.streamID, Data: map[string]any{
		"interrupter": ev.Interrupter, "targets": ev.Targets, "mode": ev.Mode,
	}})
}

func (s *Session) onBargeInCancelled(ev bargein.Event) {
	s.events.Log(eventlog.Event{Type: "barge_in.cancelled", SessionID: s.streamID, Data: map[string]any{
		"interrupter": ev.Interrupter,
	}})
}

func (s *Session) onDuckingRequest(targets []session.SpeakerID, active bool) {
	if active {
		s.duck.StartDucking(targets, audioproc.ProfileMedium, 0, audioproc.CurveExponential, false)
	} else {
		s.duck.StopDucking(targets, 0, audioproc.CurveExponential, false)
	}
}

// onTranscript handles a finalized STT result: captions, recorder, routing.
func (s *Session) onTranscript(text string, isFinal bool) {
	if !isFinal {
		return
	}
	caption := session.Caption{ID: newID(), Speaker: session.Human, Text: text, TimestampMS: time.Now().UnixMilli()}
	s.mu.Lock()
	s.captions = append([]session.Caption{caption}, s.captions...)
	if len(s.captions) > session.MaxCaptionHistory {
		s.captions = s.captions[:session.MaxCaptionHistory]
	}
	s.setOrbLocked(session.Human, session.OrbListening)
	s.mu.Unlock()

	s.sendCaption(caption)
	logged := redact.Text(text)
	s.rec.AddCaption(session.Human, logged)
	s.events.Log(eventlog.Event{Type: "transcript.final", SessionID: s.streamID, Data: map[string]any{"text": logged}})

	decision := s.router.Route(s.streamID, text)
	if decision == nil {
		return
	}
	s.applyCommand(decision)
}

func (s *Session) applyCommand(d *router.Decision) {
	switch d.Action {
	case router.ActionThinking:
		target := session.Host
		if len(d.Targets) > 0 {
			target = d.Targets[0]
		}
		durationMS := int64(30000)
		if d.DurationMS != nil {
			durationMS = *d.DurationMS
		}
		s.orch.enterThinking(target, time.Duration(durationMS)*time.Millisecond)
	case router.ActionAddress:
		s.mu.Lock()
		s.pendingTargets = d.Targets
		s.mu.Unlock()
		s.sendAck("addressed")
		s.triggerAgentTurn(d.Targets, d.Remainder)
	case router.ActionBargeInControl:
		s.mu.Lock()
		s.pendingTargets = nil
		s.mu.Unlock()
		s.bargein.OnSpeechStart(session.Human, d.Confidence)
	case router.ActionDuckingControl:
		s.mu.Lock()
		s.pendingTargets = nil
		active := s.duckingActive
		s.duckingActive = !active
		targets := d.Targets
		s.mu.Unlock()
		if len(targets) == 0 {
			targets = []session.SpeakerID{session.Host, session.Guest}
		}
		s.onDuckingRequest(targets, !active)
	default:
		s.mu.Lock()
		s.pendingTargets = nil
		s.mu.Unlock()
	}
}

// triggerAgentTurn asks the optional LLM port for a response on behalf of
// each addressed agent and forwards it to that agent's TTS port. A session
// with no LLM port configured leaves addressed agents silent, same as an
// agent whose TTS handle never resolved.
func (s *Session) triggerAgentTurn(targets []session.SpeakerID, text string) {
	if s.orch.llmPort == nil {
		return
	}
	for _, target := range targets {
		if !target.IsAgent() {
			continue
		}
		ttsPort, ok := s.ttsPort[target]
		if !ok {
			continue
		}
		go func(target session.SpeakerID, ttsPort tts.Port) {
			resp, err := s.orch.llmPort.Generate(context.Background(), llm.Turn{Speaker: string(target), Text: text})
			if err != nil {
				s.log.Warn("llm_generate_failed", "speaker", target, "err", err)
				return
			}
			ttsPort.Synthesize(context.Background(), s.streamID, resp.Text)
		}(target, ttsPort)
	}
}

// onTTSChunk applies ducking to synthesized audio and forwards it to the
// recorder and client.
func (s *Session) onTTSChunk(speaker session.SpeakerID, pcm []byte) {
	processed := s.duck.Process(speaker, pcm)

	s.mu.Lock()
	wasActive := s.activeAgents[speaker]
	if !wasActive {
		s.activeAgents[speaker] = true
	}
	s.mu.Unlock()

	if !wasActive {
		s.events.Log(eventlog.Event{Type: "tts.start", SessionID: s.streamID, Data: map[string]any{"speaker": speaker}})
		s.mu.Lock()
		s.setOrbLocked(speaker, session.OrbSpeaking)
		s.mu.Unlock()
		s.bargein.OnSpeechStart(speaker, 0.9)
	}

	if err := s.rec.WriteAudio(speaker, processed); err != nil {
		s.log.Warn("recorder_write_failed", "err", err, "speaker", speaker)
	}
	s.events.Log(eventlog.Event{Type: "tts.chunk", SessionID: s.streamID, Data: map[string]any{"speaker": speaker, "bytes": len(processed)}})
	s.sendAudio(speaker, processed)
}

func (s *Session) onTTSComplete(speaker session.SpeakerID) {
	s.mu.Lock()
	delete(s.activeAgents, speaker)
	s.mu.Unlock()
	s.events.Log(eventlog.Event{Type: "tts.complete", SessionID: s.streamID, Data: map[string]any{"speaker": speaker}})
	s.bargein.OnSpeechEnd(speaker, 0.9)
	s.mu.Lock()
	if !s.humanSpeaking {
		s.setOrbLocked(speaker, session.OrbListening)
	}
	s.mu.Unlock()
}

func (s *Session) onTTSError(speaker session.SpeakerID, err error) {
	s.log.Warn("tts_error", "speaker", speaker, "err", err)
	s.sendAck("tts error: " + string(speaker))
	s.onTTSComplete(speaker)
}

func (s *Session) onToggleAutopilot(enabled bool) {
	s.mu.Lock()
	s.autopilot = enabled
	s.mu.Unlock()
	s.sendAck("autopilot toggled")
	s.sendSnapshot()
	s.events.Log(eventlog.Event{Type: "client.toggle_autopilot", SessionID: s.streamID, Data: map[string]any{"enabled": enabled}})
}

// setOrbLocked updates an orb state and emits orb.state. Callers must hold
// s.mu.
func (s *Session) setOrbLocked(speaker session.SpeakerID, state session.OrbState) {
	if s.orbStates[speaker] == state {
		return
	}
	s.orbStates[speaker] = state
	s.send("orb.state", map[string]any{"speaker": speaker, "state": state})
}

func (s *Session) snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	orbs := make(map[session.SpeakerID]session.OrbState, len(s.orbStates))
	for k, v := range s.orbStates {
		orbs[k] = v
	}
	n := session.SnapshotCaptionCount
	if len(s.captions) < n {
		n = len(s.captions)
	}
	return session.Snapshot{
		OrbStates:    orbs,
		Captions:     append([]session.Caption(nil), s.captions[:n]...),
		Autopilot:    s.autopilot,
		SharedScreen: s.orch.currentSharedScreen(),
	}
}

func (s *Session) sendSnapshot() {
	s.send("state.snapshot", s.snapshot())
}

func (s *Session) sendCaption(c session.Caption) {
	s.send("caption", c)
}

func (s *Session) sendAck(msg string) {
	s.send("server.ack", msg)
}

func (s *Session) send(msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("send_marshal_failed", "msg_type", msgType, "err", err)
		return
	}
	f := frames.NewTextFrame(s.streamID, time.Now().UnixNano(), string(data), map[string]string{frames.MetaMsgType: msgType})
	if err := s.orch.transport.Send(f); err != nil {
		s.log.Warn("send_failed", "msg_type", msgType, "err", err)
	}
}

func (s *Session) sendAudio(speaker session.SpeakerID, pcm []byte) {
	f := frames.NewAudioFrame(s.streamID, time.Now().UnixNano(), pcm, s.orch.cfg.SampleRate, 1, map[string]string{frames.MetaSpeaker: string(speaker)})
	if err := s.orch.transport.Send(f); err != nil {
		s.log.Warn("send_audio_failed", "err", err)
	}
}

// disconnect stops every adapter, the recorder, and the event log for this
// session, reporting written files. It returns the aggregate of every
// adapter's stop error rather than the first, so a slow TTS shutdown never
// masks a failed recorder flush.
func (s *Session) disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs error
	if s.sttPort != nil {
		errs = multierr.Append(errs, s.sttPort.Stop(s.streamID))
	}
	for _, p := range s.ttsPort {
		h := p.Stop(s.streamID)
		<-h.Done()
		errs = multierr.Append(errs, h.Err())
	}

	files, err := s.rec.Stop()
	errs = multierr.Append(errs, err)
	s.send("recording.ready", map[string]any{"episodeId": s.streamID, "files": files})
	s.events.Log(eventlog.Event{Type: "session.end", SessionID: s.streamID})
	errs = multierr.Append(errs, s.events.Stop())
	if errs != nil {
		s.log.Warn("session_disconnect_errors", "err", errs)
	}
	return errs
}
