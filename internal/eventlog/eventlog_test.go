package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendsOneJSONRecordPerLine(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "ep-1", false, nil)
	require.NoError(t, l.Start())

	l.Log(Event{Type: "orb.state", SessionID: "s1", Data: map[string]any{"speaker": "host", "state": "speaking"}})
	l.Log(Event{Type: "caption", SessionID: "s1", Data: map[string]any{"text": "hello"}})

	require.NoError(t, l.Stop())

	f, err := os.Open(filepath.Join(dir, "ep-1", "events.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "orb.state", first.Type)
	require.Equal(t, "s1", first.SessionID)
	require.False(t, first.Timestamp.IsZero())
}

func TestLog_WriteBeforeStartIsNoop(t *testing.T) {
	l := New(t.TempDir(), "ep-2", false, nil)
	l.Log(Event{Type: "orb.state", SessionID: "s1"})
	require.NoError(t, l.Stop())
}
