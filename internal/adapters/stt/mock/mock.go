// Package mock provides a deterministic STT adapter for tests and local
// development: every audio chunk it receives after Start produces one
// final transcript.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/orbtalk/orb/internal/adapters/stt"
)

// Adapter is a mock stt.Port that echoes a configured transcript as a final
// result for every non-empty SendAudio call on a started session.
type Adapter struct {
	cb         stt.Callbacks
	transcript string

	mu       sync.Mutex
	sessions map[string]bool
}

// New constructs a mock STT adapter. An empty transcript defaults to
// "mock transcript".
func New(transcript string, cb stt.Callbacks) *Adapter {
	if transcript == "" {
		transcript = "mock transcript"
	}
	return &Adapter{cb: cb, transcript: transcript, sessions: make(map[string]bool)}
}

func (a *Adapter) Name() string { return "mock_stt" }

func (a *Adapter) Start(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[sessionID] = true
	return nil
}

func (a *Adapter) SendAudio(sessionID string, pcm []byte) error {
	a.mu.Lock()
	started := a.sessions[sessionID]
	a.mu.Unlock()
	if !started {
		return errors.New("mock_stt: session not started")
	}
	if len(pcm) == 0 {
		return nil
	}
	if a.cb.OnTranscript != nil {
		a.cb.OnTranscript(sessionID, a.transcript, true)
	}
	return nil
}

func (a *Adapter) Stop(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
	return nil
}

var _ stt.Port = (*Adapter)(nil)
