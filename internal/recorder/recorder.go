// Package recorder implements the Recorder port: raw PCM captured per
// speaker track plus a JSON captions sidecar, one subtree per episode. The
// container format is opaque to the core; this is the implementation's
// chosen format.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/orbtalk/orb/internal/errorsx"
	"github.com/orbtalk/orb/internal/session"
)

// Caption is one entry in the captions sidecar.
type Caption struct {
	Speaker   session.SpeakerID `json:"speaker"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
}

// Recorder writes one raw-PCM file per speaker and a JSON captions sidecar
// under storageDir/episodeID/.
type Recorder struct {
	dir string

	mu       sync.Mutex
	tracks   map[session.SpeakerID]*os.File
	captions []Caption
	started  bool
}

// New constructs a Recorder rooted at storageDir/episodeID/.
func New(storageDir, episodeID string) *Recorder {
	return &Recorder{
		dir:    filepath.Join(storageDir, episodeID),
		tracks: make(map[session.SpeakerID]*os.File),
	}
}

// Start creates the episode directory. Track files are created lazily on
// first write so an episode with a silent speaker doesn't leave an empty
// file behind.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRecorderWrite)
	}
	r.started = true
	return nil
}

// WriteAudio appends pcm to speaker's raw track file.
func (r *Recorder) WriteAudio(speaker session.SpeakerID, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	f, ok := r.tracks[speaker]
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(r.dir, fmt.Sprintf("%s.pcm", speaker)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonRecorderWrite)
		}
		r.tracks[speaker] = f
	}
	if _, err := f.Write(pcm); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRecorderWrite)
	}
	return nil
}

// AddCaption appends a captioned utterance to the in-memory sidecar,
// flushed to disk on Stop.
func (r *Recorder) AddCaption(speaker session.SpeakerID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.captions = append(r.captions, Caption{Speaker: speaker, Text: text, Timestamp: time.Now()})
}

// Stop closes all track files, writes the captions sidecar, and returns the
// list of files produced for this episode.
func (r *Recorder) Stop() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil, nil
	}
	var files []string
	for speaker, f := range r.tracks {
		name := f.Name()
		if err := f.Close(); err != nil {
			return files, errorsx.Wrap(err, errorsx.ReasonRecorderWrite)
		}
		files = append(files, name)
		delete(r.tracks, speaker)
	}

	sidecarPath := filepath.Join(r.dir, "captions.json")
	b, err := json.MarshalIndent(r.captions, "", "  ")
	if err != nil {
		return files, errorsx.Wrap(err, errorsx.ReasonRecorderWrite)
	}
	if err := os.WriteFile(sidecarPath, b, 0o644); err != nil {
		return files, errorsx.Wrap(err, errorsx.ReasonRecorderWrite)
	}
	files = append(files, sidecarPath)
	r.started = false
	return files, nil
}
