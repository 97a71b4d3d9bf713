// Package schema validates note and folder payloads at the protocol
// boundary, so handlers work with records whose shape is already known
// instead of duck-typing optional fields.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const noteSchema = `{
	"type": "object",
	"required": ["id", "userId"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"userId": {"type": "string", "minLength": 1},
		"title": {"type": "string"},
		"content": {"type": "string"},
		"folderId": {"type": "string"},
		"pinned": {"type": "boolean"},
		"archived": {"type": "boolean"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"createdAt": {"type": "string"},
		"updatedAt": {"type": "string"}
	}
}`

const folderSchema = `{
	"type": "object",
	"required": ["id", "userId", "name"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"userId": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"color": {"type": "string"},
		"parentId": {"type": "string"},
		"createdAt": {"type": "string"},
		"updatedAt": {"type": "string"}
	}
}`

var (
	note   = mustCompile("note.json", noteSchema)
	folder = mustCompile("folder.json", folderSchema)
)

func mustCompile(name, raw string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(err)
	}

	return compiler.MustCompile(name)
}

// ValidateNote checks a note payload against the note schema.
func ValidateNote(raw json.RawMessage) error {
	return validate(note, raw)
}

// ValidateFolder checks a folder payload against the folder schema.
func ValidateFolder(raw json.RawMessage) error {
	return validate(folder, raw)
}

func validate(sch *jsonschema.Schema, raw json.RawMessage) error {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	if err := sch.Validate(value); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}

	return nil
}
