package router

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/orbtalk/orb/internal/session"
)

type intentPattern struct {
	re         *regexp.Regexp
	confidence float64
}

var bargeInPatterns = []intentPattern{
	{regexp.MustCompile(`(?i)\b(stop|halt|interrupt|quiet|silence)\b`), 0.8},
	{regexp.MustCompile(`(?i)\b(hold\s+up|wait\s+a\s+minute)\b`), 0.75},
	{regexp.MustCompile(`(?i)\bmute\s+(everyone|all)\b`), 0.85},
}

var duckingPatterns = []intentPattern{
	{regexp.MustCompile(`(?i)\b(lower|reduce|quieter|softer)\s+(volume|sound)\b`), 0.8},
	{regexp.MustCompile(`(?i)\bturn\s+down\b`), 0.75},
	{regexp.MustCompile(`(?i)\bvolume\s+down\b`), 0.8},
}

var thinkingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)thinking\s+mode`),
	regexp.MustCompile(`(?i)take\s+a\s+(beat|moment|second)`),
	regexp.MustCompile(`(?i)need\s+to\s+think`),
	regexp.MustCompile(`(?i)give\s+(me|us|them)\s+(\d+)?\s*(seconds?|minutes?|time)`),
	regexp.MustCompile(`(?i)time\s+to\s+(think|process|consider)`),
	regexp.MustCompile(`(?i)let\s+(me|us|them)\s+(think|process|ponder)`),
	regexp.MustCompile(`(?i)pause\s+(for|to)`),
}

var continuationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(and\s+)?(also|too|as well)`),
	regexp.MustCompile(`(?i)^continue`),
	regexp.MustCompile(`(?i)^same\s+to\s+you`),
	regexp.MustCompile(`(?i)^you\s+too`),
	regexp.MustCompile(`(?i)\b(same|ditto)\b`),
}

var (
	explicitSeconds = regexp.MustCompile(`(?i)(\d+)\s*(seconds?|secs?|s\b)`)
	explicitMinutes = regexp.MustCompile(`(?i)(\d+)\s*(minutes?|mins?|m\b)`)
	implicitQuick   = regexp.MustCompile(`(?i)\b(quick|brief|short)\s+(moment|pause|beat)\b`)
	implicitLong    = regexp.MustCompile(`(?i)\blong\s+(moment|pause|beat)\b`)
)

// Router parses finalized human transcripts into routing Decisions,
// retaining a rolling per-stream context for contextual continuation.
type Router struct {
	mu      sync.Mutex
	aliases Aliases
	ctx     map[string]Context
}

// New constructs a Router with the given address aliases.
func New(aliases Aliases) *Router {
	return &Router{aliases: aliases.withDefaults(), ctx: make(map[string]Context)}
}

// Route parses one finalized transcript for streamID. Empty or
// whitespace-only input returns nil.
func (r *Router) Route(streamID, raw string) *Decision {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return nil
	}

	if d := matchIntent(raw, normalized, bargeInPatterns, ActionBargeInControl); d != nil {
		return d
	}
	if d := matchIntent(raw, normalized, duckingPatterns, ActionDuckingControl); d != nil {
		return d
	}

	r.mu.Lock()
	ctx := r.ctx[streamID]
	r.mu.Unlock()

	targets, remainder, confidence, matched, fuzzy := r.matchAddress(normalized, ctx)

	action, err := classifyAction(remainder, targets)
	if err != nil {
		return nil
	}

	var durationMS *int64
	if action == ActionThinking {
		ms := extractDuration(remainder)
		durationMS = &ms
		if len(targets) == 0 {
			targets = []session.SpeakerID{session.Host}
		}
	}

	decision := &Decision{
		Raw:             raw,
		Normalized:      normalized,
		Targets:         targets,
		Remainder:       remainder,
		Action:          action,
		DurationMS:      durationMS,
		Confidence:      confidence,
		MatchedKeywords: matched,
		FuzzyMatched:    fuzzy,
		ContextSnapshot: ctx,
	}

	if len(targets) > 0 {
		r.mu.Lock()
		r.ctx[streamID] = Context{LastAddressed: targets, LastAction: action, Timestamp: time.Now()}
		r.mu.Unlock()
	}

	return decision
}

// ResetStream drops a stream's rolling context, e.g. on call end.
func (r *Router) ResetStream(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ctx, streamID)
}

func matchIntent(raw, normalized string, patterns []intentPattern, action Action) *Decision {
	for _, p := range patterns {
		if p.re.MatchString(normalized) {
			return &Decision{
				Raw:        raw,
				Normalized: normalized,
				Targets:    []session.SpeakerID{session.Host, session.Guest},
				Remainder:  normalized,
				Action:     action,
				Confidence: p.confidence,
			}
		}
	}
	return nil
}

// matchAddress runs the five-step address parsing cascade, returning
// targets, the remaining text, a confidence, matched keyword literals, and
// whether the match was fuzzy.
func (r *Router) matchAddress(normalized string, ctx Context) ([]session.SpeakerID, string, float64, []string, bool) {
	table := r.aliases.keywordTable()

	if t, rem, kw, ok := matchDirectPrefix(normalized, table); ok {
		return t, rem, 0.9, []string{kw}, false
	}
	if t, rem, kw, ok := matchKeywordPrefix(normalized, table); ok {
		return t, rem, 0.7, []string{kw}, false
	}
	if t, rem, kw, ok := matchInline(normalized, table); ok {
		return t, rem, 0.55, []string{kw}, false
	}
	if t, rem, kw, sim, ok := matchFuzzy(normalized, table); ok {
		return t, rem, 0.7 * sim, []string{kw}, true
	}
	if len(ctx.LastAddressed) > 0 && matchesAny(normalized, continuationPatterns) {
		return ctx.LastAddressed, normalized, 0.6, nil, false
	}

	return nil, normalized, 0, nil, false
}

func matchDirectPrefix(normalized string, table []keywordEntry) ([]session.SpeakerID, string, string, bool) {
	for _, e := range table {
		re := regexp.MustCompile(`(?i)^(hey\s+)?@?` + regexp.QuoteMeta(e.keyword) + `[:\-,\s]+`)
		loc := re.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		if !strings.HasPrefix(normalized, "hey ") && !strings.HasPrefix(normalized, "@") {
			continue // reserved for the plain keyword-prefix step below
		}
		return e.targets, strings.TrimSpace(normalized[loc[1]:]), e.keyword, true
	}
	return nil, "", "", false
}

func matchKeywordPrefix(normalized string, table []keywordEntry) ([]session.SpeakerID, string, string, bool) {
	for _, e := range table {
		re := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(e.keyword) + `[:\-,\s]+`)
		loc := re.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		return e.targets, strings.TrimSpace(normalized[loc[1]:]), e.keyword, true
	}
	return nil, "", "", false
}

func matchInline(normalized string, table []keywordEntry) ([]session.SpeakerID, string, string, bool) {
	head := normalized
	if len(head) > 20 {
		head = head[:20]
	}
	for _, e := range table {
		re := regexp.MustCompile(`(?i)[\s,:-]` + regexp.QuoteMeta(e.keyword) + `[\s,:-]`)
		loc := re.FindStringIndex(" " + head + " ")
		if loc == nil {
			continue
		}
		idx := strings.Index(normalized, e.keyword)
		if idx < 0 || idx > 20 {
			continue
		}
		remainder := strings.TrimSpace(normalized[:idx] + normalized[idx+len(e.keyword):])
		return e.targets, remainder, e.keyword, true
	}
	return nil, "", "", false
}

func matchFuzzy(normalized string, table []keywordEntry) ([]session.SpeakerID, string, string, float64, bool) {
	tokens := strings.Fields(normalized)
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	bestSim := 0.0
	var bestKw string
	var bestTargets []session.SpeakerID
	bestTok := ""
	for _, tok := range tokens {
		clean := strings.Trim(tok, ".,!?:;-")
		for _, e := range table {
			d := levenshtein(clean, e.keyword)
			if d > 2 {
				continue
			}
			sim := 1 - float64(d)/float64(len(e.keyword))
			if sim >= 0.6 && sim > bestSim {
				bestSim = sim
				bestKw = e.keyword
				bestTargets = e.targets
				bestTok = tok
			}
		}
	}
	if bestTargets == nil {
		return nil, "", "", 0, false
	}
	remainder := strings.TrimSpace(strings.Replace(normalized, bestTok, "", 1))
	return bestTargets, remainder, bestKw, bestSim, true
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func classifyAction(remainder string, targets []session.SpeakerID) (Action, error) {
	if containsThinkingKeyword(remainder) || matchesAny(remainder, thinkingPatterns) {
		return ActionThinking, nil
	}
	if len(targets) > 0 {
		return ActionAddress, nil
	}
	return ActionBroadcast, nil
}

func containsThinkingKeyword(text string) bool {
	for _, kw := range thinkingKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// minThinkingMS floors every extracted duration so a thinking decision
// always satisfies duration_ms >= 10s, even when the transcript asks for an
// explicit shorter one (e.g. "give me 5 seconds").
const minThinkingMS = 10_000

func extractDuration(text string) int64 {
	ms := int64(30_000)
	switch {
	case explicitSeconds.MatchString(text):
		m := explicitSeconds.FindStringSubmatch(text)
		if n, err := strconv.Atoi(m[1]); err == nil {
			ms = int64(n) * 1000
		}
	case explicitMinutes.MatchString(text):
		m := explicitMinutes.FindStringSubmatch(text)
		if n, err := strconv.Atoi(m[1]); err == nil {
			ms = int64(n) * 60 * 1000
		}
	case implicitQuick.MatchString(text):
		ms = 10_000
	case implicitLong.MatchString(text):
		ms = 60_000
	}
	if ms < minThinkingMS {
		ms = minThinkingMS
	}
	return ms
}
