// Package stt is the speech-to-text port. Vendor implementations live in
// subpackages (deepgram, mock) and are constructed with a Callbacks value
// supplied by the session that owns them.
package stt

import "context"

// Callbacks receives transcript and error events for one session's STT
// stream. Calls happen from adapter-owned goroutines; the receiver must not
// block for long or hold the adapter's internal locks.
type Callbacks struct {
	OnTranscript func(sessionID, text string, isFinal bool)
	OnError      func(sessionID string, err error)
}

// Config is vendor-agnostic STT tuning.
type Config struct {
	SampleRate int
	Language   string
}

// Port is the contract every STT vendor adapter implements.
type Port interface {
	Name() string
	Start(ctx context.Context, sessionID string) error
	SendAudio(sessionID string, pcm []byte) error
	Stop(sessionID string) error
}
