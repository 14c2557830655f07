package router

import "github.com/orbtalk/orb/internal/session"

// Aliases names the spoken keywords that address each participant.
// "claude", "guest", and "basil" are the defaults; a deployment renames
// them to match its own agent names.
type Aliases struct {
	Host  string
	Guest string
	Human string
}

func (a Aliases) withDefaults() Aliases {
	if a.Host == "" {
		a.Host = "claude"
	}
	if a.Guest == "" {
		a.Guest = "guest"
	}
	if a.Human == "" {
		a.Human = "basil"
	}
	return a
}

// keywordEntry pairs a lowercase keyword with the speakers it addresses.
type keywordEntry struct {
	keyword string
	targets []session.SpeakerID
}

// keywordTable lists every keyword in a fixed order, so a match against
// several equally-good candidates (a prefix or fuzzy tie) always resolves
// to the same one regardless of run.
func (a Aliases) keywordTable() []keywordEntry {
	return []keywordEntry{
		{a.Host, []session.SpeakerID{session.Host}},
		{a.Guest, []session.SpeakerID{session.Guest}},
		{a.Human, []session.SpeakerID{session.Human}},
		{"both", []session.SpeakerID{session.Host, session.Guest}},
		{"everyone", []session.SpeakerID{session.Host, session.Guest}},
		{"all", []session.SpeakerID{session.Host, session.Guest}},
		{"showrunner", []session.SpeakerID{session.Host}},
		{"autopilot", []session.SpeakerID{session.Host}},
	}
}

var thinkingKeywords = []string{
	"thinking", "think", "pause", "wait", "hold", "moment", "beat",
	"countdown", "processing", "consider", "ponder", "reflect",
}
