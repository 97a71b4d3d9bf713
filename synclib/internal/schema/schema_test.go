package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillvault/syncwire/synclib/internal/schema"
)

func TestValidateNote(t *testing.T) {
	testData := map[string]struct {
		payload string
		ok      bool
	}{
		"complete": {
			`{"id":"n1","userId":"u1","title":"[ENCRYPTED]","content":"[ENCRYPTED]","pinned":true,"tags":["a","b"]}`,
			true,
		},
		"minimal":          {`{"id":"n1","userId":"u1"}`, true},
		"missing id":       {`{"userId":"u1"}`, false},
		"missing userId":   {`{"id":"n1"}`, false},
		"empty id":         {`{"id":"","userId":"u1"}`, false},
		"wrong pinned":     {`{"id":"n1","userId":"u1","pinned":"yes"}`, false},
		"wrong tags":       {`{"id":"n1","userId":"u1","tags":[1,2]}`, false},
		"not an object":    {`["id","userId"]`, false},
		"not valid json":   {`{"id":`, false},
	}

	for name, param := range testData {
		t.Run(name, func(t *testing.T) {
			err := schema.ValidateNote(json.RawMessage(param.payload))

			if param.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateFolder(t *testing.T) {
	testData := map[string]struct {
		payload string
		ok      bool
	}{
		"complete":     {`{"id":"f1","userId":"u1","name":"work","color":"#fff","parentId":"f0"}`, true},
		"minimal":      {`{"id":"f1","userId":"u1","name":"work"}`, true},
		"missing name": {`{"id":"f1","userId":"u1"}`, false},
		"empty name":   {`{"id":"f1","userId":"u1","name":""}`, false},
	}

	for name, param := range testData {
		t.Run(name, func(t *testing.T) {
			err := schema.ValidateFolder(json.RawMessage(param.payload))

			if param.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
