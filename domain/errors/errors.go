// Package errors provides the launch error taxonomy.
// All error types support error unwrapping via errors.As() and errors.Is().
//
// ConfigurationMissing is fatal for the whole process. The remaining kinds
// are scoped to one module and are recovered inside its Launch Task.
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/reglet-launcher/domain/entities"
)

// Kind names one entry of the launch error taxonomy.
type Kind string

const (
	KindConfigurationMissing       Kind = "ConfigurationMissing"
	KindArchiveUnreadable          Kind = "ArchiveUnreadable"
	KindEntryPointMissing          Kind = "EntryPointMissing"
	KindEntryPointUnresolvable     Kind = "EntryPointUnresolvable"
	KindEntryPointInvocationFailed Kind = "EntryPointInvocationFailed"
	KindInternal                   Kind = "Internal"
)

// DetailedError is implemented by every taxonomy error so callers can turn
// it into a structured ErrorDetail without a type switch.
type DetailedError interface {
	error
	Kind() Kind
	ToErrorDetail() *entities.ErrorDetail
}

// KindOf returns the taxonomy kind of err, or KindInternal for errors
// outside the taxonomy.
func KindOf(err error) Kind {
	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.Kind()
	}
	return KindInternal
}

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
		Code:    string(KindInternal),
	}
}

// ConfigurationMissingError reports that no module list could be found in
// any of the accepted sources.
type ConfigurationMissingError struct {
	Setting string // config key / flag name, e.g. "modules"
	EnvVar  string // environment fallback, e.g. "MODULES"
}

func (e *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("either the '%s' setting or the '%s' environment variable is required", e.Setting, e.EnvVar)
}

// Kind implements DetailedError.
func (e *ConfigurationMissingError) Kind() Kind { return KindConfigurationMissing }

// ToErrorDetail implements DetailedError.
func (e *ConfigurationMissingError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "config",
		Code:    string(KindConfigurationMissing),
		Details: map[string]any{"setting": e.Setting, "env": e.EnvVar},
	}
}

// ArchiveUnreadableError reports an archive that could not be opened or
// whose metadata could not be decoded.
type ArchiveUnreadableError struct {
	Err  error
	Path string
}

func (e *ArchiveUnreadableError) Error() string {
	return fmt.Sprintf("archive %s is unreadable: %v", e.Path, e.Err)
}

func (e *ArchiveUnreadableError) Unwrap() error {
	return e.Err
}

// Kind implements DetailedError.
func (e *ArchiveUnreadableError) Kind() Kind { return KindArchiveUnreadable }

// ToErrorDetail implements DetailedError.
func (e *ArchiveUnreadableError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "archive",
		Code:    string(KindArchiveUnreadable),
		Details: map[string]any{"archive_path": e.Path},
	}
}

// EntryPointMissingError reports archive metadata without an entry-point
// identifier.
type EntryPointMissingError struct {
	Path string
	Key  string // metadata key that was expected
}

func (e *EntryPointMissingError) Error() string {
	return fmt.Sprintf("archive %s declares no entry point (missing %q in %s)", e.Path, e.Key, entities.ManifestFileName)
}

// Kind implements DetailedError.
func (e *EntryPointMissingError) Kind() Kind { return KindEntryPointMissing }

// ToErrorDetail implements DetailedError.
func (e *EntryPointMissingError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "entry_point",
		Code:    string(KindEntryPointMissing),
		Details: map[string]any{"archive_path": e.Path, "key": e.Key},
	}
}

// EntryPointUnresolvableError reports an entry-point identifier that could
// not be found in the isolated context, or that is not callable with a
// list of string arguments.
type EntryPointUnresolvableError struct {
	Err        error
	Path       string
	Identifier string
}

func (e *EntryPointUnresolvableError) Error() string {
	return fmt.Sprintf("entry point %q in %s cannot be resolved: %v", e.Identifier, e.Path, e.Err)
}

func (e *EntryPointUnresolvableError) Unwrap() error {
	return e.Err
}

// Kind implements DetailedError.
func (e *EntryPointUnresolvableError) Kind() Kind { return KindEntryPointUnresolvable }

// ToErrorDetail implements DetailedError.
func (e *EntryPointUnresolvableError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "entry_point",
		Code:    string(KindEntryPointUnresolvable),
		Details: map[string]any{"archive_path": e.Path, "identifier": e.Identifier},
	}
}

// EntryPointInvocationError reports a failure raised by the entry point
// itself: instantiation, a trap, a non-zero exit or a recovered panic.
type EntryPointInvocationError struct {
	Err        error
	Path       string
	Identifier string
	Stack      []byte
}

func (e *EntryPointInvocationError) Error() string {
	return fmt.Sprintf("entry point %q in %s failed: %v", e.Identifier, e.Path, e.Err)
}

func (e *EntryPointInvocationError) Unwrap() error {
	return e.Err
}

// Kind implements DetailedError.
func (e *EntryPointInvocationError) Kind() Kind { return KindEntryPointInvocationFailed }

// ToErrorDetail implements DetailedError.
func (e *EntryPointInvocationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "invocation",
		Code:    string(KindEntryPointInvocationFailed),
		Details: map[string]any{"archive_path": e.Path, "identifier": e.Identifier},
		Stack:   e.Stack,
	}
}
