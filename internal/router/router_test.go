package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbtalk/orb/internal/session"
)

func newTestRouter() *Router {
	return New(Aliases{Host: "claude", Guest: "guest", Human: "basil"})
}

func TestRoute_EmptyInputReturnsNil(t *testing.T) {
	r := newTestRouter()
	assert.Nil(t, r.Route("s1", "   "))
	assert.Nil(t, r.Route("s1", ""))
}

func TestRoute_BargeInControlBypassesAddressing(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "claude, please stop talking now")
	require.NotNil(t, d)
	assert.Equal(t, ActionBargeInControl, d.Action)
	assert.ElementsMatch(t, []session.SpeakerID{session.Host, session.Guest}, d.Targets)
}

func TestRoute_DuckingControl(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "turn down the volume please")
	require.NotNil(t, d)
	assert.Equal(t, ActionDuckingControl, d.Action)
}

func TestRoute_DirectPrefixHighConfidence(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "hey claude, what do you think?")
	require.NotNil(t, d)
	// the remainder "what do you think?" contains the thinking keyword "think".
	assert.Equal(t, ActionThinking, d.Action)
	assert.Equal(t, []session.SpeakerID{session.Host}, d.Targets)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	assert.False(t, d.FuzzyMatched)
}

func TestRoute_KeywordPrefixLowerConfidenceThanDirect(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "claude what do you think?")
	require.NotNil(t, d)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
}

func TestRoute_BothKeywordAddressesHostAndGuest(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "both of you, settle down")
	require.NotNil(t, d)
	assert.ElementsMatch(t, []session.SpeakerID{session.Host, session.Guest}, d.Targets)
}

func TestRoute_FuzzyMatchWithinEditDistance(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "claud what do you think")
	require.NotNil(t, d)
	assert.True(t, d.FuzzyMatched)
	assert.Equal(t, []session.SpeakerID{session.Host}, d.Targets)
}

func TestRoute_ContextualContinuationReusesLastAddressed(t *testing.T) {
	r := newTestRouter()
	first := r.Route("s1", "hey claude, tell me a joke")
	require.NotNil(t, first)
	require.Equal(t, []session.SpeakerID{session.Host}, first.Targets)

	second := r.Route("s1", "you too")
	require.NotNil(t, second)
	assert.Equal(t, []session.SpeakerID{session.Host}, second.Targets)
}

func TestRoute_ThinkingActionDefaultsTargetToHost(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "take a moment to think about that")
	require.NotNil(t, d)
	assert.Equal(t, ActionThinking, d.Action)
	assert.Equal(t, []session.SpeakerID{session.Host}, d.Targets)
	require.NotNil(t, d.DurationMS)
}

func TestRoute_ThinkingDurationExplicitSeconds(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "give us 15 seconds to think")
	require.NotNil(t, d)
	require.NotNil(t, d.DurationMS)
	assert.EqualValues(t, 15000, *d.DurationMS)
}

func TestRoute_ThinkingDurationImplicitQuick(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "just a quick moment please")
	require.NotNil(t, d)
	require.NotNil(t, d.DurationMS)
	assert.EqualValues(t, 10000, *d.DurationMS)
}

func TestRoute_UnaddressedNonThinkingIsBroadcast(t *testing.T) {
	r := newTestRouter()
	d := r.Route("s1", "that was a great point")
	require.NotNil(t, d)
	assert.Equal(t, ActionBroadcast, d.Action)
	assert.Empty(t, d.Targets)
}

func TestRoute_IsDeterministicForSameInput(t *testing.T) {
	r1 := newTestRouter()
	r2 := newTestRouter()
	a := r1.Route("s1", "hey claude what do you think")
	b := r2.Route("s2", "hey claude what do you think")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.Action, b.Action)
	assert.Equal(t, a.Targets, b.Targets)
	assert.Equal(t, a.Confidence, b.Confidence)
}

func TestLevenshtein_KnownDistances(t *testing.T) {
	assert.Equal(t, 0, levenshtein("claude", "claude"))
	assert.Equal(t, 1, levenshtein("claud", "claude"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
