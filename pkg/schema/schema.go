package schema

import (
	"github.com/invopop/jsonschema"
)

func generateSchema[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

// BackupSchema describes the export envelope for client tooling. Decoding
// does not enforce it beyond the characters array.
var BackupSchema = generateSchema[BackupData]()
