package host

import (
	"context"
	"io"
	"log/slog"

	"github.com/reglet-dev/reglet-launcher/domain/ports"
	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	"github.com/tetratelabs/wazero"
)

// HostModuleFunc instantiates a host module on an isolated runtime.
type HostModuleFunc func(ctx context.Context, r wazero.Runtime) error

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	parser      ports.ManifestParser
	archives    ports.ArchiveSource
	validator   ports.ManifestValidator
	registry    *hostfuncs.HandlerRegistry
	cache       wazero.CompilationCache
	logger      *slog.Logger
	stdout      io.Writer
	stderr      io.Writer
	hostModules map[string]HostModuleFunc
	libraryDir  string
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithParser sets a custom manifest parser.
func WithParser(p ports.ManifestParser) LoaderOption {
	return func(c *loaderConfig) {
		c.parser = p
	}
}

// WithArchiveSource sets how archives are opened.
func WithArchiveSource(s ports.ArchiveSource) LoaderOption {
	return func(c *loaderConfig) {
		c.archives = s
	}
}

// WithValidator sets the manifest validator.
func WithValidator(v ports.ManifestValidator) LoaderOption {
	return func(c *loaderConfig) {
		c.validator = v
	}
}

// WithRegistry sets the host functions exported as the reglet_launcher module.
func WithRegistry(r *hostfuncs.HandlerRegistry) LoaderOption {
	return func(c *loaderConfig) {
		c.registry = r
	}
}

// WithHostModule adds a host module to the last search-path layer. A module
// bundled in an archive or declared as a dependency under the same name
// takes precedence.
func WithHostModule(name string, fn HostModuleFunc) LoaderOption {
	return func(c *loaderConfig) {
		if c.hostModules == nil {
			c.hostModules = make(map[string]HostModuleFunc)
		}
		c.hostModules[name] = fn
	}
}

// WithCompilationCache shares compiled code across isolated contexts. The
// caller keeps ownership of cache.
func WithCompilationCache(cache wazero.CompilationCache) LoaderOption {
	return func(c *loaderConfig) {
		c.cache = cache
	}
}

// WithLibraryDir sets where declared dependencies are read from. It
// defaults to "lib" next to each archive.
func WithLibraryDir(dir string) LoaderOption {
	return func(c *loaderConfig) {
		c.libraryDir = dir
	}
}

// WithLogger sets the logger used for host diagnostics and relayed module
// logs.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(c *loaderConfig) {
		c.logger = logger
	}
}

// WithOutput sets where module stdout and stderr are written.
func WithOutput(stdout, stderr io.Writer) LoaderOption {
	return func(c *loaderConfig) {
		c.stdout = stdout
		c.stderr = stderr
	}
}
