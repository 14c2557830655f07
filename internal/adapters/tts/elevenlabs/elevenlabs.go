// Package elevenlabs adapts ElevenLabs' streaming text-to-speech WebSocket
// API to the tts.Port contract.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbtalk/orb/internal/adapters"
	"github.com/orbtalk/orb/internal/adapters/tts"
	"github.com/orbtalk/orb/internal/resilience"
	"github.com/orbtalk/orb/internal/session"
)

// Config is the ElevenLabs-specific tuning beyond tts.Config.
type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
}

type stream struct {
	conn    *websocket.Conn
	writeCh chan ttsMessage
	cancel  context.CancelFunc
}

type ttsMessage struct {
	text  string
	flush bool
}

// Adapter is a tts.Port for one agent speaker, backed by one ElevenLabs
// WebSocket connection per active session.
type Adapter struct {
	speaker session.SpeakerID
	cfg     Config
	ttsCfg  tts.Config
	cb      tts.Callbacks
	log     *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

// New constructs an ElevenLabs TTS adapter for one speaker.
func New(speaker session.SpeakerID, cfg Config, ttsCfg tts.Config, cb tts.Callbacks, log *slog.Logger) *Adapter {
	if ttsCfg.SampleRate == 0 {
		ttsCfg.SampleRate = 44100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		speaker: speaker,
		cfg:     cfg,
		ttsCfg:  ttsCfg,
		cb:      cb,
		log:     log.With("component", "elevenlabs_tts", "speaker", string(speaker)),
		streams: make(map[string]*stream),
	}
}

func (a *Adapter) Name() string { return "elevenlabs_tts" }

// Synthesize opens (or reuses) the session's ElevenLabs connection and
// queues text for synthesis.
func (a *Adapter) Synthesize(ctx context.Context, sessionID string, text string) adapters.Handle {
	h, resolve := adapters.NewHandle()
	go func() {
		s, err := a.streamFor(ctx, sessionID)
		if err != nil {
			if a.cb.OnError != nil {
				a.cb.OnError(sessionID, a.speaker, err)
			}
			resolve(err)
			return
		}
		text = strings.TrimSpace(text)
		if text != "" && !strings.HasSuffix(text, " ") {
			text += " "
		}
		select {
		case s.writeCh <- ttsMessage{text: text}:
		default:
		}
		resolve(nil)
	}()
	return h
}

// Stop flushes and tears down the session's connection.
func (a *Adapter) Stop(sessionID string) adapters.Handle {
	h, resolve := adapters.NewHandle()
	a.mu.Lock()
	s, ok := a.streams[sessionID]
	delete(a.streams, sessionID)
	a.mu.Unlock()
	if !ok {
		resolve(nil)
		return h
	}
	select {
	case s.writeCh <- ttsMessage{text: " ", flush: true}:
	default:
	}
	s.cancel()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conn.Close()
	resolve(nil)
	return h
}

func (a *Adapter) streamFor(ctx context.Context, sessionID string) (*stream, error) {
	a.mu.Lock()
	if s, ok := a.streams[sessionID]; ok {
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	if a.cfg.APIKey == "" || a.cfg.VoiceID == "" {
		return nil, errors.New("elevenlabs: missing api key or voice id")
	}

	u := a.buildURL()
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.Dial(u, http.Header{"xi-api-key": []string{a.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{conn: conn, writeCh: make(chan ttsMessage, 64), cancel: cancel}

	a.mu.Lock()
	a.streams[sessionID] = s
	a.mu.Unlock()

	_ = conn.WriteJSON(map[string]any{
		"text":                   " ",
		"try_trigger_generation": true,
		"voice_settings":         map[string]any{"stability": 0.5, "similarity_boost": 0.8},
		"generation_config":      map[string]any{"chunk_length_schedule": []int{120, 160, 250, 290}},
	})

	go a.writeLoop(streamCtx, s)
	go a.readLoop(streamCtx, sessionID, s)
	return s, nil
}

func (a *Adapter) buildURL() string {
	base := "wss://api.elevenlabs.io/v1/text-to-speech/" + a.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	if a.cfg.ModelID != "" {
		q.Set("model_id", a.cfg.ModelID)
	}
	if a.cfg.OutputFormat != "" {
		q.Set("output_format", a.cfg.OutputFormat)
	}
	q.Set("optimize_streaming_latency", "4")
	return base + "?" + q.Encode()
}

func (a *Adapter) writeLoop(ctx context.Context, s *stream) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.writeCh:
			payload := map[string]any{"text": msg.text}
			if msg.flush {
				payload["flush"] = true
			}
			_ = s.conn.WriteJSON(payload)
		case <-ticker.C:
			_ = s.conn.WriteJSON(map[string]any{"text": " "})
		}
	}
}

func (a *Adapter) readLoop(ctx context.Context, sessionID string, s *stream) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					a.log.Warn("elevenlabs_read_error", "session", sessionID, "err", err)
				}
				if a.cb.OnComplete != nil {
					a.cb.OnComplete(sessionID, a.speaker)
				}
				return
			}
			a.handleMessage(sessionID, data)
		}
	}
}

func (a *Adapter) handleMessage(sessionID string, data []byte) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	audio, ok := msg["audio"].(string)
	if !ok {
		if v, ok := msg["audio_base_64"].(string); ok {
			audio = v
		} else if v, ok := msg["audio_base64"].(string); ok {
			audio = v
		} else {
			return
		}
	}
	raw, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		a.log.Warn("elevenlabs_audio_decode_error", "session", sessionID, "err", err)
		return
	}
	if a.cb.OnChunk != nil {
		a.cb.OnChunk(sessionID, a.speaker, raw)
	}
	if done, _ := msg["isFinal"].(bool); done && a.cb.OnComplete != nil {
		a.cb.OnComplete(sessionID, a.speaker)
	}
}

var _ tts.Port = (*Adapter)(nil)
