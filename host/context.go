package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/tetratelabs/wazero"
)

// IsolatedContext is the private resolution scope of one module: its own
// runtime, its search path and the modules linked into it so far. It is
// owned by a single launch and is not safe for concurrent resolution.
type IsolatedContext struct {
	runtime    wazero.Runtime
	manifest   *entities.ModuleManifest
	searchPath *SearchPath
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer

	// linked maps import names to the source that satisfied them.
	linked map[string]Source

	archivePath string
	closeOnce   sync.Once
	closeErr    error
}

// Manifest returns the archive's manifest.
func (ic *IsolatedContext) Manifest() *entities.ModuleManifest {
	return ic.manifest
}

// ArchivePath returns the archive the context was loaded from.
func (ic *IsolatedContext) ArchivePath() string {
	return ic.archivePath
}

// SearchPath returns the context's search path.
func (ic *IsolatedContext) SearchPath() *SearchPath {
	return ic.searchPath
}

// Linked returns the source each linked import name resolved to.
func (ic *IsolatedContext) Linked() map[string]Source {
	out := make(map[string]Source, len(ic.linked))
	for name, src := range ic.linked {
		out[name] = src
	}
	return out
}

// Close releases the runtime and every module instantiated in it. It is
// safe to call more than once.
func (ic *IsolatedContext) Close(ctx context.Context) error {
	ic.closeOnce.Do(func() {
		ic.closeErr = ic.runtime.Close(ctx)
	})
	return ic.closeErr
}

// compile compiles a module from the search path. Compiled code is shared
// across contexts through the loader's cache.
func (ic *IsolatedContext) compile(ctx context.Context, src Source) (wazero.CompiledModule, error) {
	code, err := src.load()
	if err != nil {
		return nil, err
	}
	compiled, err := ic.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("compile %s module %q (%s): %w", src.Layer, src.Name, src.Origin, err)
	}
	return compiled, nil
}

// linkImports makes every module that compiled imports available in the
// runtime. chain holds the import path leading here, for cycle detection.
func (ic *IsolatedContext) linkImports(ctx context.Context, compiled wazero.CompiledModule, chain []string) error {
	for _, name := range importedModules(compiled) {
		if err := ic.link(ctx, name, chain); err != nil {
			return err
		}
	}
	return nil
}

// link resolves name along the search path and instantiates it, first
// linking its own imports. Each name is instantiated at most once.
func (ic *IsolatedContext) link(ctx context.Context, name string, chain []string) error {
	if _, ok := ic.linked[name]; ok {
		return nil
	}
	if slices.Contains(chain, name) {
		return fmt.Errorf("import cycle: %s", strings.Join(append(slices.Clone(chain), name), " -> "))
	}

	src, ok := ic.searchPath.Lookup(name)
	if !ok {
		return fmt.Errorf("module %q imported by %q not found on search path", name, chain[len(chain)-1])
	}

	if src.IsHost() {
		if err := src.host(ctx, ic.runtime); err != nil {
			return fmt.Errorf("instantiate host module %q: %w", name, err)
		}
		ic.linked[name] = src
		return nil
	}

	compiled, err := ic.compile(ctx, src)
	if err != nil {
		return err
	}
	if err := ic.linkImports(ctx, compiled, append(slices.Clone(chain), name)); err != nil {
		return err
	}

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize").
		WithStdout(ic.stdout).
		WithStderr(ic.stderr)
	if _, err := ic.runtime.InstantiateModule(ctx, compiled, cfg); err != nil {
		return fmt.Errorf("instantiate %s module %q: %w", src.Layer, name, err)
	}

	ic.logger.DebugContext(ctx, "linked module",
		"import", name,
		"layer", string(src.Layer),
		"origin", src.Origin,
		"archive_path", ic.archivePath)
	ic.linked[name] = src
	return nil
}

// importedModules lists the distinct module names compiled imports
// functions or memories from, sorted.
func importedModules(compiled wazero.CompiledModule) []string {
	seen := make(map[string]struct{})
	for _, fn := range compiled.ImportedFunctions() {
		if module, _, ok := fn.Import(); ok {
			seen[module] = struct{}{}
		}
	}
	for _, mem := range compiled.ImportedMemories() {
		if module, _, ok := mem.Import(); ok {
			seen[module] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type isolatedContextKey struct{}

// WithIsolatedContext attaches ic to ctx so host functions called while the
// module runs can reach the context that loaded it.
func WithIsolatedContext(ctx context.Context, ic *IsolatedContext) context.Context {
	return context.WithValue(ctx, isolatedContextKey{}, ic)
}

// IsolatedContextFrom returns the IsolatedContext attached to ctx.
func IsolatedContextFrom(ctx context.Context) (*IsolatedContext, bool) {
	ic, ok := ctx.Value(isolatedContextKey{}).(*IsolatedContext)
	return ic, ok
}
