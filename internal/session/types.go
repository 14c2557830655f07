// Package session defines the data model shared by every session-scoped
// component: speaker identity, orb presentation state, captions, and the
// shared-screen value.
package session

import "time"

// SpeakerID is one of the three closed-set participants in a conversation.
type SpeakerID string

const (
	Human SpeakerID = "human"
	Host  SpeakerID = "host"
	Guest SpeakerID = "guest"
)

// Valid reports whether id is one of the three known speakers.
func (id SpeakerID) Valid() bool {
	switch id {
	case Human, Host, Guest:
		return true
	default:
		return false
	}
}

// IsAgent reports whether id is one of the two non-human participants.
func (id SpeakerID) IsAgent() bool {
	return id == Host || id == Guest
}

// OrbState is the per-speaker presentation state surfaced to clients.
type OrbState string

const (
	OrbIdle      OrbState = "idle"
	OrbListening OrbState = "listening"
	OrbThinking  OrbState = "thinking"
	OrbSpeaking  OrbState = "speaking"
	OrbMuted     OrbState = "muted"
	OrbError     OrbState = "error"
)

// ID is an opaque session identifier, unique for the session's lifetime.
type ID string

// Caption is one finalized (or interim) STT transcript entry.
type Caption struct {
	ID          string    `json:"id"`
	Speaker     SpeakerID `json:"speaker"`
	Text        string    `json:"text"`
	TimestampMS int64     `json:"timestampMs"`
}

// MaxCaptionHistory is the number of captions a session retains.
const MaxCaptionHistory = 20

// SnapshotCaptionCount is the number of most-recent captions exposed in a
// state snapshot.
const SnapshotCaptionCount = 6

// ScreenMode distinguishes the two SharedScreen variants.
type ScreenMode string

const (
	ScreenConversation ScreenMode = "conversation"
	ScreenThinking     ScreenMode = "thinking"
)

// SharedScreen is the single-valued, process-scoped presentation mode. At
// most one instance exists per session, and globally at most one Thinking
// screen is active across the whole orchestrator at a time.
type SharedScreen struct {
	Mode       ScreenMode `json:"mode"`
	Speaker    SpeakerID  `json:"speaker,omitempty"`
	DurationMS int64      `json:"durationMs,omitempty"`
	StartedAt  time.Time  `json:"startedAt,omitempty"`
	EndsAt     time.Time  `json:"endsAt,omitempty"`
}

// Conversation returns the default, non-thinking shared-screen value.
func Conversation() SharedScreen {
	return SharedScreen{Mode: ScreenConversation}
}

// Thinking returns a Thinking shared-screen value for speaker, starting now
// and lasting duration.
func Thinking(speaker SpeakerID, duration time.Duration, now time.Time) SharedScreen {
	return SharedScreen{
		Mode:       ScreenThinking,
		Speaker:    speaker,
		DurationMS: duration.Milliseconds(),
		StartedAt:  now,
		EndsAt:     now.Add(duration),
	}
}

// Snapshot is the complete presentation state a client can use to
// reconstruct orbs, recent captions, autopilot, and the shared screen
// without having observed any prior deltas.
type Snapshot struct {
	OrbStates    map[SpeakerID]OrbState `json:"orbStates"`
	Captions     []Caption              `json:"captions"`
	Autopilot    bool                   `json:"autopilot"`
	SharedScreen SharedScreen           `json:"sharedScreen"`
}
