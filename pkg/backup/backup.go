// Package backup encodes and decodes the interchange envelope shared by file
// export, import and remote backup.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/invopop/jsonschema"

	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

// Version is written into every envelope. It is never checked on decode.
const Version = "1.0"

var (
	// ErrParse means the input is not well-formed JSON.
	ErrParse = errors.New("backup is not valid JSON")
	// ErrSchema means the input is JSON but lacks a characters array.
	ErrSchema = errors.New("backup has no characters array")
)

// Encode builds an envelope from the given snapshot. Pretty output uses a
// two-space indent and is meant for downloads; compact output goes to remotes.
func Encode(characters []schema.Character, panels []schema.ComicPanel, now time.Time, pretty bool) ([]byte, error) {
	if characters == nil {
		characters = []schema.Character{}
	}
	if panels == nil {
		panels = []schema.ComicPanel{}
	}
	doc := schema.BackupData{
		Characters: characters,
		Panels:     panels,
		Timestamp:  schema.Millis(now),
		Version:    Version,
	}
	if pretty {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// Decode parses an envelope. Only the presence of a characters array is
// enforced; a field of the wrong type inside a record is left zero and the
// rest of the document still decodes.
func Decode(data []byte) (schema.BackupData, error) {
	if !json.Valid(data) {
		return schema.BackupData{}, fmt.Errorf("%w: %w", ErrParse, syntaxError(data))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return schema.BackupData{}, ErrSchema
	}
	chars, ok := top["characters"]
	if !ok || !isArray(chars) {
		return schema.BackupData{}, ErrSchema
	}

	var doc schema.BackupData
	if err := json.Unmarshal(data, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return schema.BackupData{}, fmt.Errorf("%w: %w", ErrParse, err)
		}
		log.Warn("backup contains mistyped field, keeping the rest", "field", typeErr.Field, "value", typeErr.Value)
	}
	if doc.Characters == nil {
		doc.Characters = []schema.Character{}
	}
	return doc, nil
}

// Filename is the dated download name, e.g. manhua_backup_2024-05-01.json.
func Filename(t time.Time) string {
	return "manhua_backup_" + t.Format(time.DateOnly) + ".json"
}

func Schema() *jsonschema.Schema {
	return schema.BackupSchema
}

// Message turns a decode error into the text shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParse):
		return "The file could not be read. Make sure it is a backup exported from this app."
	case errors.Is(err, ErrSchema):
		return "The file is not a valid backup: no character list was found."
	default:
		return "The backup could not be restored."
	}
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func syntaxError(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return errors.New("malformed input")
}
