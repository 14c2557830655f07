// Package eventlog is the append-only JSONL event sink: every session and
// orchestrator lifecycle event is recorded as one JSON record per line, one
// file per episode.
package eventlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hokaccha/go-prettyjson"

	"github.com/orbtalk/orb/internal/errorsx"
)

// Event is one append-only record. Fields beyond the common envelope are
// carried in Data, keyed by whatever the emitting component names them.
type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log appends Events to one JSONL file per episode under a configured
// storage directory.
type Log struct {
	dir    string
	pretty bool
	log    *slog.Logger

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// New constructs a Log rooted at storageDir/episodeID/events.jsonl. pretty
// enables human-readable indentation for local debugging; production use
// should leave it false to keep the file line-oriented.
func New(storageDir, episodeID string, pretty bool, log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{
		dir:    filepath.Join(storageDir, episodeID),
		pretty: pretty,
		log:    log.With("component", "eventlog", "episode", episodeID),
	}
}

// Start opens (creating if necessary) the episode's event log file.
func (l *Log) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonEventLogWrite)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonEventLogWrite)
	}
	l.file = f
	l.enc = json.NewEncoder(f)
	return nil
}

// Log appends ev, stamping Timestamp if the caller left it zero. A write
// failure is logged and swallowed: the event log is diagnostic, not a
// source of session-fatal errors.
func (l *Log) Log(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if l.pretty {
		b, err := prettyjson.Marshal(ev)
		if err != nil {
			l.log.Warn("eventlog_marshal_error", "err", err)
			return
		}
		if _, err := l.file.Write(append(b, '\n')); err != nil {
			l.log.Warn("eventlog_write_error", "err", err)
		}
		return
	}
	if err := l.enc.Encode(ev); err != nil {
		l.log.Warn("eventlog_write_error", "err", err)
	}
}

// Stop flushes and closes the underlying file.
func (l *Log) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.enc = nil
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("close event log: %w", err), errorsx.ReasonEventLogWrite)
	}
	return nil
}
