// Package router implements the Command Router: it translates a finalized
// human transcript into a routing decision, preserving short-term context
// between utterances per audio stream.
package router

import (
	"time"

	"github.com/orbtalk/orb/internal/session"
)

// Action classifies what a Decision asks the orchestrator to do.
type Action string

const (
	ActionAddress        Action = "address"
	ActionThinking       Action = "thinking"
	ActionBroadcast      Action = "broadcast"
	ActionBargeInControl Action = "barge_in_control"
	ActionDuckingControl Action = "ducking_control"
)

// Decision is the result of routing one finalized transcript.
type Decision struct {
	Raw             string
	Normalized      string
	Targets         []session.SpeakerID
	Remainder       string
	Action          Action
	DurationMS      *int64
	Confidence      float64
	MatchedKeywords []string
	FuzzyMatched    bool
	ContextSnapshot Context
}

// Context is the rolling per-stream state the router consults for
// contextual continuation ("same to you", "you too", ...).
type Context struct {
	LastAddressed []session.SpeakerID
	LastAction    Action
	Timestamp     time.Time
}
