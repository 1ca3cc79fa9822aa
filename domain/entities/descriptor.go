package entities

import (
	"strconv"
)

// NamespacePrefix prefixes the per-module namespace derived from its port.
const NamespacePrefix = "module-"

// ModuleRequest names one module to launch. It is consumed once to build a
// LaunchDescriptor.
type ModuleRequest struct {
	Name string
}

// LaunchDescriptor is everything a Launch Task needs to start one module.
// It is owned by exactly one task and never mutated after creation.
type LaunchDescriptor struct {
	// Module is the requested module name, kept for log context.
	Module string `json:"module"`

	// ArchivePath is the resolved archive location.
	ArchivePath string `json:"archive_path"`

	// Port is the unique port allocated to this launch.
	Port int `json:"port"`
}

// Namespace returns the module-scoped identity derived from the port.
// Siblings in the same host process never share a namespace because they
// never share a port.
func (d LaunchDescriptor) Namespace() string {
	return NamespacePrefix + strconv.Itoa(d.Port)
}
