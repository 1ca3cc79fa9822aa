// Package schema generates the JSON Schema of module metadata.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/reglet-launcher/domain/entities"
)

// ManifestSchemaID identifies the module.yaml schema.
const ManifestSchemaID = "https://reglet.dev/schemas/module.json"

// GenerateSchema creates a JSON schema (Draft 2020-12) from a Go struct.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// ManifestSchema returns the schema of module.yaml.
func ManifestSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(&entities.ModuleManifest{})
	schema.ID = jsonschema.ID(ManifestSchemaID)
	schema.Title = "Reglet module manifest"
	schema.Description = "Metadata embedded as " + entities.ManifestFileName + " in a module archive."

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest schema: %w", err)
	}
	return jsonBytes, nil
}
