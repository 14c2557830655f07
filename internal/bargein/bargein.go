// Package bargein implements the Barge-In Manager: it mediates overlapping
// speech between the three parties, deciding when an interruption is
// authorized and coordinating ducking of the interrupted speakers.
package bargein

import (
	"sync"
	"time"

	"github.com/orbtalk/orb/internal/session"
)

// Mode selects how an authorized interruption is carried out.
type Mode string

const (
	ModeImmediate        Mode = "immediate"
	ModeGraceful         Mode = "graceful"
	ModeSentenceComplete Mode = "sentence_complete"
	ModeDisabled         Mode = "disabled"
)

// Priority levels a speaker can hold. Higher wins ties against a
// strictly-lower interrupted party.
const (
	PriorityHuman  = 100
	PriorityHigh   = 75
	PriorityMedium = 50
	PriorityLow    = 25
)

// Config tunes the manager. Zero values take sane defaults.
type Config struct {
	Mode                    Mode
	GracePeriodMs           int
	SentenceCompletionMaxMs int
	DuckingEnabled          bool
	DuckingLeadTimeMs       int
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeGraceful
	}
	if c.GracePeriodMs <= 0 {
		c.GracePeriodMs = 300
	}
	if c.SentenceCompletionMaxMs <= 0 {
		c.SentenceCompletionMaxMs = 2000
	}
	if c.DuckingLeadTimeMs <= 0 {
		c.DuckingLeadTimeMs = 150
	}
	return c
}

// EventType names a history entry's kind.
type EventType string

const (
	EventStart     EventType = "start"
	EventComplete  EventType = "complete"
	EventCancelled EventType = "cancelled"
)

// Event is one recorded barge-in occurrence.
type Event struct {
	Type        EventType
	Interrupter session.SpeakerID
	Targets     []session.SpeakerID
	Confidence  float64
	Mode        Mode
	Timestamp   time.Time
}

// Callbacks are the manager's best-effort side effects. A nil callback is
// simply skipped.
type Callbacks struct {
	OnBargeInStart     func(Event)
	OnBargeInComplete  func(Event)
	OnBargeInCancelled func(Event)
	OnDuckingRequest   func(targets []session.SpeakerID, active bool)
}

type speakerEntry struct {
	speaking          bool
	startedAt         time.Time
	allowInterruption bool
	priority          int
}

type pendingBargeIn struct {
	interrupter session.SpeakerID
	confidence  float64
	scheduledAt time.Time
	targets     []session.SpeakerID
	mode        Mode
	timer       *time.Timer
}

const maxHistory = 100

// Manager mediates barge-in across the three speakers in a session.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	cb       Callbacks
	speakers map[session.SpeakerID]*speakerEntry
	pending  *pendingBargeIn
	history  []Event
}

// New constructs a Manager. Every well-known speaker is pre-registered with
// AllowInterruption=true; the human defaults to PriorityHuman, the two
// agents to PriorityMedium.
func New(cfg Config, cb Callbacks) *Manager {
	m := &Manager{
		cfg: cfg.withDefaults(),
		cb:  cb,
		speakers: map[session.SpeakerID]*speakerEntry{
			session.Human: {allowInterruption: true, priority: PriorityHuman},
			session.Host:  {allowInterruption: true, priority: PriorityMedium},
			session.Guest: {allowInterruption: true, priority: PriorityMedium},
		},
	}
	return m
}

// SetPriority overrides a speaker's priority level.
func (m *Manager) SetPriority(speaker session.SpeakerID, priority int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.speakers[speaker]; ok {
		e.priority = priority
	}
}

// SetAllowInterruption overrides whether a speaker may be interrupted.
func (m *Manager) SetAllowInterruption(speaker session.SpeakerID, allow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.speakers[speaker]; ok {
		e.allowInterruption = allow
	}
}

// OnSpeechStart records a speaker beginning to talk and, if that
// constitutes an authorized interruption, initiates barge-in handling per
// the configured mode.
func (m *Manager) OnSpeechStart(speaker session.SpeakerID, confidence float64) {
	m.mu.Lock()

	entry, ok := m.speakers[speaker]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.speaking = true
	entry.startedAt = time.Now()

	if m.cfg.Mode == ModeDisabled {
		m.mu.Unlock()
		return
	}

	var activeOthers []session.SpeakerID
	for id, e := range m.speakers {
		if id != speaker && e.speaking {
			activeOthers = append(activeOthers, id)
		}
	}
	if len(activeOthers) == 0 {
		m.mu.Unlock()
		return
	}

	var targets []session.SpeakerID
	for _, id := range activeOthers {
		if m.speakers[id].allowInterruption {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		m.mu.Unlock()
		return
	}

	if !m.authorized(speaker, targets) {
		m.mu.Unlock()
		return
	}

	switch m.cfg.Mode {
	case ModeImmediate:
		m.executeInterruptionLocked(speaker, targets, confidence, ModeImmediate)
		m.mu.Unlock()
	case ModeGraceful:
		m.scheduleLocked(speaker, targets, confidence, ModeGraceful, time.Duration(m.cfg.GracePeriodMs)*time.Millisecond)
		m.mu.Unlock()
	case ModeSentenceComplete:
		m.scheduleLocked(speaker, targets, confidence, ModeSentenceComplete, time.Duration(m.cfg.SentenceCompletionMaxMs)*time.Millisecond)
		m.mu.Unlock()
	default:
		m.mu.Unlock()
	}
}

// authorized must be called with mu held.
func (m *Manager) authorized(interrupter session.SpeakerID, targets []session.SpeakerID) bool {
	if interrupter == session.Human {
		return true
	}
	p := m.speakers[interrupter].priority
	for _, t := range targets {
		if p <= m.speakers[t].priority {
			return false
		}
	}
	return true
}

// scheduleLocked must be called with mu held.
func (m *Manager) scheduleLocked(interrupter session.SpeakerID, targets []session.SpeakerID, confidence float64, mode Mode, delay time.Duration) {
	if m.cfg.DuckingEnabled && m.cb.OnDuckingRequest != nil {
		m.cb.OnDuckingRequest(targets, true)
	}
	now := time.Now()
	pending := &pendingBargeIn{
		interrupter: interrupter,
		confidence:  confidence,
		scheduledAt: now,
		targets:     targets,
		mode:        mode,
	}
	pending.timer = time.AfterFunc(delay, func() {
		m.onGraceExpired(pending, now)
	})
	m.pending = pending
}

func (m *Manager) onGraceExpired(p *pendingBargeIn, started time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != p || !m.pending.scheduledAt.Equal(started) {
		return // superseded or already resolved
	}

	entry, ok := m.speakers[p.interrupter]
	if ok && entry.speaking {
		m.executeInterruptionLocked(p.interrupter, p.targets, p.confidence, p.mode)
	} else {
		if m.cfg.DuckingEnabled && m.cb.OnDuckingRequest != nil {
			m.cb.OnDuckingRequest(p.targets, false)
		}
	}
	m.pending = nil
}

// executeInterruptionLocked must be called with mu held.
func (m *Manager) executeInterruptionLocked(interrupter session.SpeakerID, targets []session.SpeakerID, confidence float64, mode Mode) {
	now := time.Now()
	for _, t := range targets {
		if e, ok := m.speakers[t]; ok {
			e.speaking = false
		}
	}
	start := Event{Type: EventStart, Interrupter: interrupter, Targets: targets, Confidence: confidence, Mode: mode, Timestamp: now}
	complete := Event{Type: EventComplete, Interrupter: interrupter, Targets: targets, Confidence: confidence, Mode: mode, Timestamp: now}
	m.appendHistory(start)
	m.appendHistory(complete)
	if m.cb.OnBargeInStart != nil {
		m.cb.OnBargeInStart(start)
	}
	if m.cb.OnBargeInComplete != nil {
		m.cb.OnBargeInComplete(complete)
	}
}

// OnSpeechEnd records a speaker stopping and cancels a pending barge-in
// they initiated, if any.
func (m *Manager) OnSpeechEnd(speaker session.SpeakerID, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.speakers[speaker]; ok {
		e.speaking = false
	}

	if m.pending == nil || m.pending.interrupter != speaker {
		return
	}
	p := m.pending
	p.timer.Stop()
	m.pending = nil

	if m.cfg.DuckingEnabled && m.cb.OnDuckingRequest != nil {
		m.cb.OnDuckingRequest(p.targets, false)
	}
	event := Event{Type: EventCancelled, Interrupter: speaker, Targets: p.targets, Confidence: confidence, Mode: p.mode, Timestamp: time.Now()}
	m.appendHistory(event)
	if m.cb.OnBargeInCancelled != nil {
		m.cb.OnBargeInCancelled(event)
	}
}

func (m *Manager) appendHistory(e Event) {
	m.history = append(m.history, e)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// History returns a copy of the recorded events, oldest first.
func (m *Manager) History() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out
}

// Stats summarizes the recorded history.
type Stats struct {
	TotalCompletions    int
	CompletionsByMode   map[Mode]int
	AverageConfidence   float64
	GracePeriodFraction float64
}

// Stats computes summary statistics over the bounded history.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{CompletionsByMode: make(map[Mode]int)}
	var confSum float64
	var graceUsed int
	for _, e := range m.history {
		if e.Type != EventComplete {
			continue
		}
		s.TotalCompletions++
		s.CompletionsByMode[e.Mode]++
		confSum += e.Confidence
		if e.Mode == ModeGraceful {
			graceUsed++
		}
	}
	if s.TotalCompletions > 0 {
		s.AverageConfidence = confSum / float64(s.TotalCompletions)
		s.GracePeriodFraction = float64(graceUsed) / float64(s.TotalCompletions)
	}
	return s
}
