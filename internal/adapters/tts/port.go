// Package tts is the text-to-speech port. Every operation returns an
// adapters.Handle immediately; the core never blocks on synthesis and
// never introspects which vendor produced the audio.
package tts

import (
	"context"

	"github.com/orbtalk/orb/internal/adapters"
	"github.com/orbtalk/orb/internal/session"
)

// Callbacks receives audio and lifecycle events for one speaker's TTS
// stream.
type Callbacks struct {
	OnChunk    func(sessionID string, speaker session.SpeakerID, pcm []byte)
	OnComplete func(sessionID string, speaker session.SpeakerID)
	OnError    func(sessionID string, speaker session.SpeakerID, err error)
}

// Config is vendor-agnostic TTS tuning.
type Config struct {
	SampleRate int
	Channels   int
}

// Port is the contract every TTS vendor adapter implements, one instance
// per agent speaker.
type Port interface {
	Name() string
	Synthesize(ctx context.Context, sessionID string, text string) adapters.Handle
	Stop(sessionID string) adapters.Handle
}
