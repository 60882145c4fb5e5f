package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

const (
	schemaResource = "sprocket-v1.json"
	// SchemaURL identifies the definition schema in editor headers.
	SchemaURL = "https://github.com/ormasoftchile/sprocket/schemas/" + schemaResource
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for a
// definition file (a list of tests or a single test) from the Go Test
// struct using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	test := r.Reflect(&Test{})
	s := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          SchemaURL,
		Title:       "Sprocket Test Definition v1",
		Description: "Schema for sprocket stored-procedure test definitions (Draft 2020-12)",
		Definitions: test.Definitions,
		OneOf: []*jsonschema.Schema{
			{Type: "array", Items: &jsonschema.Schema{Ref: "#/$defs/Test"}},
			{Ref: "#/$defs/Test"},
		},
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
