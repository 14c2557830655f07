// Package deepgram adapts Deepgram's streaming transcription API to the
// stt.Port contract.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/orbtalk/orb/internal/adapters/stt"
	"github.com/orbtalk/orb/internal/resilience"
)

// Config is the Deepgram-specific tuning beyond stt.Config.
type Config struct {
	APIKey    string
	Model     string
	Encoding  string
	Interim   bool
	VADEvents bool
}

type connection struct {
	client     *client.WSCallback
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	cancel     context.CancelFunc
}

// Adapter is a stt.Port backed by one Deepgram WebSocket connection per
// session.
type Adapter struct {
	cfg     Config
	sttCfg  stt.Config
	cb      stt.Callbacks
	log     *slog.Logger
	breaker *resilience.CircuitBreaker

	mu    sync.Mutex
	conns map[string]*connection
}

// New constructs a Deepgram STT adapter.
func New(cfg Config, sttCfg stt.Config, cb stt.Callbacks, log *slog.Logger) *Adapter {
	if sttCfg.SampleRate == 0 {
		sttCfg.SampleRate = 16000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		cfg:     cfg,
		sttCfg:  sttCfg,
		cb:      cb,
		log:     log.With("component", "deepgram_stt"),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
		conns:   make(map[string]*connection),
	}
}

func (a *Adapter) Name() string { return "deepgram_streaming" }

// Start opens a Deepgram connection for sessionID.
func (a *Adapter) Start(ctx context.Context, sessionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	connCtx, cancel := context.WithCancel(ctx)

	pr, pw := io.Pipe()
	clientOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          a.cfg.Model,
		Language:       a.sttCfg.Language,
		Encoding:       a.cfg.Encoding,
		SampleRate:     a.sttCfg.SampleRate,
		InterimResults: a.cfg.Interim,
		VadEvents:      a.cfg.VADEvents,
		SmartFormat:    true,
	}

	cb := &liveCallback{sessionID: sessionID, adapter: a}

	err := a.breaker.Do(func() error {
		dgClient, err := client.NewWSUsingCallback(connCtx, a.cfg.APIKey, clientOptions, transcriptOptions, cb)
		if err != nil {
			return err
		}
		if connected := dgClient.Connect(); !connected {
			return fmt.Errorf("deepgram: connect failed for session %s", sessionID)
		}

		a.mu.Lock()
		a.conns[sessionID] = &connection{client: dgClient, pipeReader: pr, pipeWriter: pw, cancel: cancel}
		a.mu.Unlock()

		go func() {
			if err := dgClient.Stream(pr); err != nil && connCtx.Err() == nil {
				a.log.Error("deepgram_stream_error", "session", sessionID, "err", err)
			}
		}()
		return nil
	})
	if err != nil {
		cancel()
		return err
	}
	a.log.Info("deepgram_connected", "session", sessionID, "model", a.cfg.Model)
	return nil
}

// SendAudio writes raw PCM into the session's pipe to Deepgram.
func (a *Adapter) SendAudio(sessionID string, pcm []byte) error {
	a.mu.Lock()
	c, ok := a.conns[sessionID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("deepgram: session %s not started", sessionID)
	}
	_, err := c.pipeWriter.Write(pcm)
	return err
}

// Stop closes the session's Deepgram connection.
func (a *Adapter) Stop(sessionID string) error {
	a.mu.Lock()
	c, ok := a.conns[sessionID]
	delete(a.conns, sessionID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	c.cancel()
	_ = c.pipeWriter.Close()
	c.client.Stop()
	return nil
}

// liveCallback bridges Deepgram's message-callback interface to our
// Callbacks struct.
type liveCallback struct {
	sessionID string
	adapter   *Adapter
}

func (l *liveCallback) Open(*msginterfaces.OpenResponse) error {
	l.adapter.log.Info("deepgram_connection_opened", "session", l.sessionID)
	return nil
}

func (l *liveCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}
	if l.adapter.cb.OnTranscript != nil {
		l.adapter.cb.OnTranscript(l.sessionID, alt.Transcript, mr.IsFinal || mr.SpeechFinal)
	}
	return nil
}

func (l *liveCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }

func (l *liveCallback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (l *liveCallback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error { return nil }

func (l *liveCallback) Close(*msginterfaces.CloseResponse) error {
	l.adapter.log.Info("deepgram_connection_closed", "session", l.sessionID)
	return nil
}

func (l *liveCallback) Error(er *msginterfaces.ErrorResponse) error {
	if l.adapter.cb.OnError != nil {
		l.adapter.cb.OnError(l.sessionID, fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg))
	}
	return nil
}

func (l *liveCallback) UnhandledEvent([]byte) error { return nil }

var _ stt.Port = (*Adapter)(nil)
