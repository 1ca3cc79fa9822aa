// Package validation checks module manifests against their JSON Schema and
// struct constraints.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/reglet-launcher/application/schema"
	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/ports"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// ManifestValidator validates manifests with the generated manifest schema
// followed by the struct tags on entities.ModuleManifest.
type ManifestValidator struct {
	schema *jsonschema.Schema
}

// NewManifestValidator compiles the manifest schema.
func NewManifestValidator() (ports.ManifestValidator, error) {
	raw, err := schema.ManifestSchema()
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schema.ManifestSchemaID, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add manifest schema: %w", err)
	}
	sch, err := compiler.Compile(schema.ManifestSchemaID)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest schema: %w", err)
	}
	return &ManifestValidator{schema: sch}, nil
}

// Validate reports every schema and struct-tag violation in manifest.
func (v *ManifestValidator) Validate(manifest *entities.ModuleManifest) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}
	if manifest == nil {
		return nil, errors.New("nil manifest")
	}

	b, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare validation object: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to prepare validation object: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		result.Errors = append(result.Errors, schemaViolations(ve)...)
	}

	if err := validate.Struct(manifest); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, entities.ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			})
		}
	}

	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].Field < result.Errors[j].Field
	})
	result.Valid = len(result.Errors) == 0
	return result, nil
}

// schemaViolations flattens a schema error tree into its leaves.
func schemaViolations(ve *jsonschema.ValidationError) []entities.ValidationError {
	if len(ve.Causes) == 0 {
		field := ve.InstanceLocation
		if field == "" {
			field = "/"
		}
		return []entities.ValidationError{{Field: field, Message: ve.Message}}
	}
	var out []entities.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, schemaViolations(cause)...)
	}
	return out
}
