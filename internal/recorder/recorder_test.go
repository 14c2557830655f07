package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbtalk/orb/internal/session"
)

func TestRecorder_WritesPerSpeakerTracksAndCaptionsSidecar(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "ep-1")
	require.NoError(t, r.Start())

	require.NoError(t, r.WriteAudio(session.Host, []byte{1, 2, 3, 4}))
	require.NoError(t, r.WriteAudio(session.Host, []byte{5, 6}))
	require.NoError(t, r.WriteAudio(session.Human, []byte{9, 9}))
	r.AddCaption(session.Host, "hello there")

	files, err := r.Stop()
	require.NoError(t, err)
	require.Len(t, files, 3)

	hostPCM, err := os.ReadFile(filepath.Join(dir, "ep-1", "host.pcm"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, hostPCM)

	sidecar, err := os.ReadFile(filepath.Join(dir, "ep-1", "captions.json"))
	require.NoError(t, err)
	var captions []Caption
	require.NoError(t, json.Unmarshal(sidecar, &captions))
	require.Len(t, captions, 1)
	require.Equal(t, "hello there", captions[0].Text)
}

func TestRecorder_WriteBeforeStartIsNoop(t *testing.T) {
	r := New(t.TempDir(), "ep-2")
	require.NoError(t, r.WriteAudio(session.Host, []byte{1}))
	files, err := r.Stop()
	require.NoError(t, err)
	require.Nil(t, files)
}
