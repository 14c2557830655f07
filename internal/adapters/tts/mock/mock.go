// Package mock provides a deterministic TTS adapter that emits one silent
// chunk and completes, for tests and local development.
package mock

import (
	"context"
	"sync"

	"github.com/orbtalk/orb/internal/adapters"
	"github.com/orbtalk/orb/internal/adapters/tts"
	"github.com/orbtalk/orb/internal/session"
)

// Adapter is a mock tts.Port for a single speaker.
type Adapter struct {
	speaker    session.SpeakerID
	cb         tts.Callbacks
	sampleRate int
	channels   int

	mu      sync.Mutex
	stopped map[string]bool
}

// New constructs a mock TTS adapter for speaker.
func New(speaker session.SpeakerID, cfg tts.Config, cb tts.Callbacks) *Adapter {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Adapter{speaker: speaker, cb: cb, sampleRate: cfg.SampleRate, channels: cfg.Channels, stopped: make(map[string]bool)}
}

func (a *Adapter) Name() string { return "mock_tts" }

// Synthesize emits one 20ms silent frame then completes, unless Stop was
// called for sessionID first.
func (a *Adapter) Synthesize(_ context.Context, sessionID string, _ string) adapters.Handle {
	h, resolve := adapters.NewHandle()
	go func() {
		a.mu.Lock()
		stopped := a.stopped[sessionID]
		a.mu.Unlock()
		if stopped {
			resolve(nil)
			return
		}
		pcm := make([]byte, a.sampleRate*a.channels*20/1000*2)
		if a.cb.OnChunk != nil {
			a.cb.OnChunk(sessionID, a.speaker, pcm)
		}
		if a.cb.OnComplete != nil {
			a.cb.OnComplete(sessionID, a.speaker)
		}
		resolve(nil)
	}()
	return h
}

// Stop marks sessionID stopped; a Synthesize call already in flight for it
// will complete without emitting audio.
func (a *Adapter) Stop(sessionID string) adapters.Handle {
	h, resolve := adapters.NewHandle()
	a.mu.Lock()
	a.stopped[sessionID] = true
	a.mu.Unlock()
	resolve(nil)
	return h
}

var _ tts.Port = (*Adapter)(nil)
