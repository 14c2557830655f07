// Package redact scrubs PII from captions before they reach the event log,
// gated by a process-wide toggle set from configuration.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// SetEnabled toggles PII redaction process-wide.
func SetEnabled(v bool) { enabled.Store(v) }

// Enabled reports whether redaction is active.
func Enabled() bool { return enabled.Load() }

// Text redacts emails and phone numbers from in when enabled. It is applied
// to captions before they are written to the event log; the copy sent to
// the connected client is never redacted.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}
