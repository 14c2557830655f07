// Package ws is a WebSocket transport.Transport: one HTTP server accepting
// upgraded connections, each bound to a stream ID and multiplexing binary
// audio.chunk frames with JSON control/text envelopes on a single socket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orbtalk/orb/internal/frames"
)

// Config is the HTTP listener and path configuration.
type Config struct {
	ServerAddr     string
	Path           string
	AllowAnyOrigin bool
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	return c
}

// envelope is the JSON shape carried for every non-audio message, both
// inbound and outbound.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type conn struct {
	streamID string
	socket   *websocket.Conn
	writeMu  sync.Mutex
}

// Transport serves client connections over WebSocket, translating the
// client protocol's hello/audio.chunk/client.* messages into frames.Frame
// values and vice versa.
type Transport struct {
	cfg      Config
	log      *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan frames.Frame

	mu       sync.Mutex
	conns    map[string]*conn
	draining atomic.Bool
}

// New constructs a WebSocket transport.
func New(cfg Config, log *slog.Logger) *Transport {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	t := &Transport{
		cfg: cfg,
		log: log.With("component", "ws_transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		recvCh: make(chan frames.Frame, 512),
		conns:  make(map[string]*conn),
	}
	if cfg.AllowAnyOrigin {
		t.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return t
}

func (t *Transport) Name() string { return "ws" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.Path, t.handle)
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("ws_server_error", "err", err)
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, c := range t.conns {
		_ = c.socket.Close()
	}
	t.conns = make(map[string]*conn)
	t.mu.Unlock()
	close(t.recvCh)
	return nil
}

func (t *Transport) handle(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	socket, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	streamID := uuid.NewString()
	c := &conn{streamID: streamID, socket: socket}
	t.mu.Lock()
	t.conns[streamID] = c
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.conns, streamID)
		t.mu.Unlock()
		_ = socket.Close()
	}()

	pts := time.Now().UnixNano()
	for {
		kind, data, err := socket.ReadMessage()
		if err != nil {
			t.sendDisconnect(streamID)
			return
		}
		pts++
		if kind == websocket.BinaryMessage {
			meta := map[string]string{frames.MetaSource: "transport"}
			t.nonBlockingRecv(frames.NewAudioFrame(streamID, pts, data, 48000, 1, meta))
			continue
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("ws_malformed_envelope", "stream", streamID)
			continue
		}
		t.handleEnvelope(streamID, pts, env)
	}
}

func (t *Transport) handleEnvelope(streamID string, pts int64, env envelope) {
	meta := map[string]string{frames.MetaSource: "transport"}
	switch env.Type {
	case "hello":
		t.nonBlockingRecv(frames.NewSystemFrame(streamID, pts, "hello", meta))
	case "audio.chunk":
		var raw []byte
		_ = json.Unmarshal(env.Payload, &raw)
		t.nonBlockingRecv(frames.NewAudioFrame(streamID, pts, raw, 48000, 1, meta))
	case "client.toggle-autopilot":
		var enabled bool
		_ = json.Unmarshal(env.Payload, &enabled)
		if enabled {
			meta["value"] = "true"
		} else {
			meta["value"] = "false"
		}
		t.nonBlockingRecv(frames.NewSystemFrame(streamID, pts, "client.toggle-autopilot", meta))
	case "client.request-state":
		t.nonBlockingRecv(frames.NewSystemFrame(streamID, pts, "client.request-state", meta))
	default:
		t.log.Warn("ws_unknown_message_type", "stream", streamID, "type", env.Type)
	}
}

func (t *Transport) sendDisconnect(streamID string) {
	meta := map[string]string{frames.MetaSource: "transport"}
	t.nonBlockingRecv(frames.NewSystemFrame(streamID, time.Now().UnixNano(), "disconnect", meta))
}

func (t *Transport) nonBlockingRecv(f frames.Frame) {
	select {
	case t.recvCh <- f:
	default:
		t.log.Warn("ws_recv_buffer_full")
	}
}

// Send writes an outbound frame to the connection bound to its stream ID.
// Audio frames go out as binary messages; everything else is wrapped in a
// JSON envelope named by a text frame's MetaMsgType (default "caption") or
// a system frame's name.
func (t *Transport) Send(f frames.Frame) error {
	streamID := f.Meta()[frames.MetaStreamID]
	t.mu.Lock()
	c, ok := t.conns[streamID]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	switch fr := f.(type) {
	case frames.AudioFrame:
		payload := fr.RawPayload()
		if speaker := fr.Meta()[frames.MetaSpeaker]; speaker != "" {
			tagged := make([]byte, 1+len(payload))
			tagged[0] = speakerTag(speaker)
			copy(tagged[1:], payload)
			payload = tagged
		}
		return c.socket.WriteMessage(websocket.BinaryMessage, payload)
	case frames.TextFrame:
		msgType := fr.Meta()[frames.MetaMsgType]
		if msgType == "" {
			msgType = "caption"
		}
		return t.writeEnvelope(c, msgType, json.RawMessage(fr.Text()))
	case frames.SystemFrame:
		return t.writeEnvelope(c, fr.Name(), nil)
	default:
		return nil
	}
}

// speakerTag prefixes outbound agent audio so the client can demux the
// human's inbound-only audio.chunk channel from synthesized speech without
// a JSON envelope on every frame.
func speakerTag(speaker string) byte {
	switch speaker {
	case "host":
		return 0x01
	case "guest":
		return 0x02
	default:
		return 0xff
	}
}

func (t *Transport) writeEnvelope(c *conn, msgType string, payload json.RawMessage) error {
	env := envelope{Type: msgType, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.socket.WriteMessage(websocket.TextMessage, data)
}
