// Package parser decodes module archive metadata.
package parser

import (
	"bytes"
	"errors"
	"io"

	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlManifestParser implements ManifestParser for YAML.
// Unknown keys are rejected so a misspelled "start" is reported instead of
// silently producing a manifest without an entry point.
type YamlManifestParser struct{}

// NewYamlManifestParser creates a new YamlManifestParser.
func NewYamlManifestParser() ports.ManifestParser {
	return &YamlManifestParser{}
}

// Parse decodes YAML bytes into a ModuleManifest struct. An empty document
// yields an empty manifest.
func (p *YamlManifestParser) Parse(data []byte) (*entities.ModuleManifest, error) {
	var manifest entities.ModuleManifest

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &manifest, nil
}
