package ports

import "github.com/reglet-dev/reglet-launcher/domain/entities"

// ManifestValidator checks a parsed manifest before it is used to build an
// isolated context.
type ManifestValidator interface {
	// Validate returns the violations found. The error is reserved for
	// failures of the validator itself.
	Validate(manifest *entities.ModuleManifest) (*entities.ValidationResult, error)
}
