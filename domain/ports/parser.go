package ports

import "github.com/reglet-dev/reglet-launcher/domain/entities"

// ManifestParser parses raw archive metadata into a ModuleManifest.
type ManifestParser interface {
	// Parse unmarshals metadata bytes into a ModuleManifest struct.
	Parse(data []byte) (*entities.ModuleManifest, error)
}
