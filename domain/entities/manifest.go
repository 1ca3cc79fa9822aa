package entities

import (
	"fmt"
	"strings"
)

// ManifestFileName is the archive entry holding the module metadata.
const ManifestFileName = "module.yaml"

// DefaultEntryExport is the export invoked when the start identifier does not
// name one. WASI command modules expose their main function under this name.
const DefaultEntryExport = "_start"

// ModuleManifest is the key/value metadata embedded in a module archive.
type ModuleManifest struct {
	// Env holds extra environment variables exposed to the guest.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" jsonschema:"description=Extra environment variables for the module"`

	// Name of the module. Defaults to the archive file name.
	Name string `json:"name,omitempty" yaml:"name,omitempty" validate:"omitempty,max=128" jsonschema:"maxLength=128"`

	// Version of the module.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Description is free-form text shown in logs and tooling.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Start is the entry-point identifier: "<module>[:<export>]".
	Start string `json:"start" yaml:"start" jsonschema:"required,minLength=1,description=Entry point as <module>[:<export>]"`

	// Dependencies names shared WASM libraries from the host library
	// directory. They resolve after modules bundled in the archive and
	// before host modules.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" validate:"dive,required"`

	// Args are extra startup arguments. Each one is rendered as a template
	// with .Name, .Port and .Namespace.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Listener preopens a TCP listener on the allocated port for the guest.
	Listener bool `json:"listener,omitempty" yaml:"listener,omitempty"`
}

// EntryPointID is a parsed start identifier.
type EntryPointID struct {
	Module string
	Export string
}

// String returns the canonical "<module>:<export>" form.
func (id EntryPointID) String() string {
	return id.Module + ":" + id.Export
}

// ParseEntryPointID splits a start identifier into module and export.
// The export defaults to DefaultEntryExport.
func ParseEntryPointID(raw string) (EntryPointID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EntryPointID{}, fmt.Errorf("empty entry point identifier")
	}

	module, export, found := strings.Cut(raw, ":")
	if !found {
		export = DefaultEntryExport
	}
	if module == "" {
		return EntryPointID{}, fmt.Errorf("entry point %q names no module", raw)
	}
	if export == "" {
		return EntryPointID{}, fmt.Errorf("entry point %q names no export", raw)
	}
	return EntryPointID{Module: module, Export: export}, nil
}
