package host

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/reglet-launcher/application/validation"
	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/errors"
	"github.com/reglet-dev/reglet-launcher/infrastructure/archive"
	"github.com/reglet-dev/reglet-launcher/infrastructure/parser"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// startKey is the manifest key holding the entry-point identifier.
const startKey = "start"

// LibraryDirName is the directory under the module home holding shared
// dependencies.
const LibraryDirName = "lib"

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		parser:   parser.NewYamlManifestParser(),
		archives: archive.NewZipSource(),
		logger:   slog.Default(),
		stdout:   io.Discard,
		stderr:   io.Discard,
	}
}

// Loader builds isolated contexts from module archives. A Loader is safe
// for concurrent use; the contexts it returns are not shared.
type Loader struct {
	config      loaderConfig
	hostModules map[string]HostModuleFunc
	ownsCache   bool
}

// NewLoader creates a Loader with defaults.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.validator == nil {
		v, err := validation.NewManifestValidator()
		if err != nil {
			return nil, fmt.Errorf("failed to create manifest validator: %w", err)
		}
		cfg.validator = v
	}
	if cfg.registry == nil {
		reg, err := defaultRegistry(cfg.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		cfg.registry = reg
	}

	l := &Loader{config: cfg}
	if l.config.cache == nil {
		l.config.cache = wazero.NewCompilationCache()
		l.ownsCache = true
	}

	l.hostModules = builtinHostModules(cfg.registry, cfg.logger)
	for name, fn := range cfg.hostModules {
		l.hostModules[name] = fn
	}
	return l, nil
}

// Close releases the compilation cache if the Loader created it.
func (l *Loader) Close(ctx context.Context) error {
	if !l.ownsCache {
		return nil
	}
	return l.config.cache.Close(ctx)
}

// Load opens an archive and builds its isolated context. The archive is
// read completely; nothing is linked until ResolveEntryPoint.
func (l *Loader) Load(ctx context.Context, archivePath string) (*IsolatedContext, error) {
	fsys, err := l.config.archives.Open(archivePath)
	if err != nil {
		return nil, &errors.ArchiveUnreadableError{Path: archivePath, Err: err}
	}
	defer fsys.Close()

	manifest, err := l.loadManifest(fsys, archivePath)
	if err != nil {
		return nil, err
	}

	sp, err := l.buildSearchPath(fsys, archivePath, manifest)
	if err != nil {
		return nil, err
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCompilationCache(l.config.cache).
		WithCloseOnContextDone(true)

	l.config.logger.DebugContext(ctx, "loaded archive",
		"archive_path", archivePath,
		"module", manifest.Name,
		"start", manifest.Start,
		"bundled", sp.Names(LayerArchive),
		"dependencies", sp.Names(LayerDependencies))

	return &IsolatedContext{
		runtime:     wazero.NewRuntimeWithConfig(ctx, rtConfig),
		manifest:    manifest,
		searchPath:  sp,
		logger:      l.config.logger,
		stdout:      l.config.stdout,
		stderr:      l.config.stderr,
		linked:      make(map[string]Source),
		archivePath: archivePath,
	}, nil
}

func (l *Loader) loadManifest(fsys fs.FS, archivePath string) (*entities.ModuleManifest, error) {
	data, found, err := archive.ReadManifest(fsys)
	if err != nil {
		return nil, &errors.ArchiveUnreadableError{Path: archivePath, Err: err}
	}
	if !found {
		return nil, &errors.EntryPointMissingError{Path: archivePath, Key: startKey}
	}

	manifest, err := l.config.parser.Parse(data)
	if err != nil {
		return nil, &errors.ArchiveUnreadableError{Path: archivePath, Err: fmt.Errorf("failed to parse manifest: %w", err)}
	}
	if strings.TrimSpace(manifest.Start) == "" {
		return nil, &errors.EntryPointMissingError{Path: archivePath, Key: startKey}
	}

	res, err := l.config.validator.Validate(manifest)
	if err != nil {
		return nil, &errors.ArchiveUnreadableError{Path: archivePath, Err: fmt.Errorf("validation error: %w", err)}
	}
	if !res.Valid {
		msg := "manifest validation failed:"
		for _, e := range res.Errors {
			msg += fmt.Sprintf("\n- %s: %s", e.Field, e.Message)
		}
		return nil, &errors.ArchiveUnreadableError{Path: archivePath, Err: fmt.Errorf("%s", msg)}
	}

	if manifest.Name == "" {
		manifest.Name = archive.ModuleName(archivePath)
	}
	return manifest, nil
}

func (l *Loader) buildSearchPath(fsys fs.FS, archivePath string, manifest *entities.ModuleManifest) (*SearchPath, error) {
	bundled, err := archive.BundledModules(fsys)
	if err != nil {
		return nil, &errors.ArchiveUnreadableError{Path: archivePath, Err: err}
	}

	sp := newSearchPath()
	for _, name := range archive.SortedNames(bundled) {
		code, err := fs.ReadFile(fsys, bundled[name])
		if err != nil {
			return nil, &errors.ArchiveUnreadableError{Path: archivePath, Err: err}
		}
		sp.addBundled(name, bundled[name], code)
	}

	libraryDir := l.config.libraryDir
	if libraryDir == "" {
		libraryDir = filepath.Join(filepath.Dir(archivePath), LibraryDirName)
	}
	for _, dep := range manifest.Dependencies {
		sp.addDependency(dep, libraryDir)
	}

	for name, fn := range l.hostModules {
		sp.addHost(name, fn)
	}
	return sp, nil
}

// ResolveEntryPoint locates the manifest's start identifier in ic, links
// everything it imports and checks that the export is callable as a WASI
// command: no parameters, no results, arguments delivered as argv.
func (l *Loader) ResolveEntryPoint(ctx context.Context, ic *IsolatedContext) (*EntryPoint, error) {
	raw := ic.manifest.Start
	unresolvable := func(err error) error {
		return &errors.EntryPointUnresolvableError{Path: ic.archivePath, Identifier: raw, Err: err}
	}

	id, err := entities.ParseEntryPointID(raw)
	if err != nil {
		return nil, unresolvable(err)
	}

	src, ok := ic.searchPath.Lookup(id.Module)
	if !ok {
		return nil, unresolvable(fmt.Errorf("module %q not found on search path", id.Module))
	}
	if src.IsHost() {
		return nil, unresolvable(fmt.Errorf("module %q is provided by the host and cannot be an entry point", id.Module))
	}

	compiled, err := ic.compile(ctx, src)
	if err != nil {
		return nil, unresolvable(err)
	}

	def, ok := compiled.ExportedFunctions()[id.Export]
	if !ok {
		return nil, unresolvable(fmt.Errorf("module %q exports no function %q", id.Module, id.Export))
	}
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		return nil, unresolvable(fmt.Errorf("export %q has signature %s, want () -> ()", id.Export, signature(def)))
	}

	if err := ic.linkImports(ctx, compiled, []string{id.Module}); err != nil {
		return nil, unresolvable(err)
	}

	return &EntryPoint{ic: ic, id: id, compiled: compiled, source: src}, nil
}

func signature(def api.FunctionDefinition) string {
	names := func(types []api.ValueType) string {
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = api.ValueTypeName(t)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return names(def.ParamTypes()) + " -> " + names(def.ResultTypes())
}
