package audioproc

import (
	"sync"

	"github.com/orbtalk/orb/internal/session"
)

// Status reports one speaker's ducking state.
type Status struct {
	Ducking bool
	Gain    float64
	GainDB  float64
}

// Manager is the multi-channel façade over per-speaker Processors,
// lazily creating a channel the first time a speaker is referenced.
type Manager struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	procs      map[session.SpeakerID]*Processor
}

// NewManager constructs a Manager for streams at sampleRate/channels.
func NewManager(sampleRate, channels int) *Manager {
	return &Manager{sampleRate: sampleRate, channels: channels, procs: make(map[session.SpeakerID]*Processor)}
}

func (m *Manager) get(speaker session.SpeakerID) *Processor {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[speaker]
	if !ok {
		p = NewProcessor(m.sampleRate, m.channels)
		m.procs[speaker] = p
	}
	return p
}

// StartDucking fans start_ducking out across speakers.
func (m *Manager) StartDucking(speakers []session.SpeakerID, profile Profile, rampMs int, curve Curve, immediate bool) {
	for _, s := range speakers {
		m.get(s).StartDucking(profile, rampMs, curve, immediate)
	}
}

// StopDucking fans stop_ducking out across speakers.
func (m *Manager) StopDucking(speakers []session.SpeakerID, rampMs int, curve Curve, immediate bool) {
	for _, s := range speakers {
		m.get(s).StopDucking(rampMs, curve, immediate)
	}
}

// Process dispatches to the named speaker's processor.
func (m *Manager) Process(speaker session.SpeakerID, buf []byte) []byte {
	return m.get(speaker).Process(buf)
}

// Status returns a per-speaker ducking snapshot for every channel that has
// been created so far.
func (m *Manager) Status() map[session.SpeakerID]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[session.SpeakerID]Status, len(m.procs))
	for speaker, p := range m.procs {
		out[speaker] = Status{
			Ducking: p.IsDucking(),
			Gain:    p.CurrentGain(),
			GainDB:  p.CurrentGainDB(),
		}
	}
	return out
}
