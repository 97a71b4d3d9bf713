package synclib

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameProbeIsEnvelope(t *testing.T) {
	testData := map[string]struct {
		raw      string
		envelope bool
	}{
		"flat message":      {`{"type":"ping"}`, false},
		"envelope":          {`{"payload":{"type":"ping"},"signature":"abc","timestamp":1,"nonce":"n"}`, true},
		"signature only":    {`{"type":"ping","signature":"abc"}`, false},
		"payload only":      {`{"payload":{"type":"ping"}}`, false},
		"empty":             {`{}`, false},
	}

	for name, param := range testData {
		t.Run(name, func(t *testing.T) {
			probe := frameProbe{}
			require.NoError(t, json.Unmarshal([]byte(param.raw), &probe))

			assert.Equal(t, param.envelope, probe.isEnvelope())
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Run("Auth", func(t *testing.T) {
		msg, err := decodeMessage(MessageTypeAuth, []byte(`{"type":"auth","token":"tok"}`))

		require.NoError(t, err)
		assert.Equal(t, AuthMessage{Token: "tok"}, msg)
	})

	t.Run("JoinNote", func(t *testing.T) {
		msg, err := decodeMessage(MessageTypeJoinNote, []byte(`{"type":"join_note","noteId":"n1"}`))

		require.NoError(t, err)
		assert.Equal(t, JoinNoteMessage{NoteID: "n1"}, msg)
	})

	t.Run("NoteUpdate", func(t *testing.T) {
		raw := []byte(`{"type":"note_update","noteId":"n1","changes":{"pinned":true}}`)
		msg, err := decodeMessage(MessageTypeNoteUpdate, raw)

		require.NoError(t, err)

		update, ok := msg.(NoteUpdateMessage)
		require.True(t, ok)
		assert.Equal(t, "n1", update.NoteID)
		assert.Equal(t, true, update.Changes["pinned"])
	})

	t.Run("FolderUpdated", func(t *testing.T) {
		raw := []byte(`{"type":"folder_updated","folderId":"f1","changes":{"name":"x"}}`)
		msg, err := decodeMessage(MessageTypeFolderUpdated, raw)

		require.NoError(t, err)

		update, ok := msg.(FolderUpdatedMessage)
		require.True(t, ok)
		assert.Equal(t, "f1", update.FolderID)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := decodeMessage("bogus", []byte(`{"type":"bogus"}`))

		assert.Error(t, err)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		_, err := decodeMessage(MessageTypeNoteUpdate, []byte(`{"noteId":42}`))

		assert.Error(t, err)
	})
}
