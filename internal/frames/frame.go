// Package frames defines the internal event/audio units that flow between a
// Session's components (VAD, router, audio processor, barge-in manager) and
// out to the orchestrator's transport and event-log sinks.
package frames

// Kind identifies the payload carried by a Frame.
type Kind string

const (
	KindAudio  Kind = "audio"
	KindText   Kind = "text"
	KindSystem Kind = "system"
)

// Meta keys shared across frame kinds.
const (
	MetaStreamID = "stream_id"
	MetaSpeaker  = "speaker"
	MetaSource   = "source"
	MetaReason   = "reason"
	MetaMsgType  = "msg_type"
)

// Frame is the common interface for everything routed through a session's
// internal pipeline.
type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// AudioFrame carries 16-bit little-endian PCM samples for one speaker.
type AudioFrame struct {
	pts  int64
	data []byte
	rate int
	ch   int
	meta map[string]string
}

// NewAudioFrame constructs an AudioFrame that owns its own copy of data.
func NewAudioFrame(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: append([]byte(nil), data...),
		rate: rate,
		ch:   ch,
		meta: mergeMeta(streamID, meta),
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }

// TextFrame carries a JSON-encoded outbound message; MetaMsgType names its
// message type.
type TextFrame struct {
	pts  int64
	text string
	meta map[string]string
}

func NewTextFrame(streamID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{pts: pts, text: text, meta: mergeMeta(streamID, meta)}
}

func (t TextFrame) Kind() Kind              { return KindText }
func (t TextFrame) PTS() int64              { return t.pts }
func (t TextFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TextFrame) Text() string            { return t.text }

// SystemFrame carries a named, out-of-band lifecycle event.
type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(streamID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{pts: pts, name: name, meta: mergeMeta(streamID, meta)}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
