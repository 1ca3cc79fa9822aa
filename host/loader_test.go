package host

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/reglet-dev/reglet-launcher/domain/errors"
	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	"github.com/reglet-dev/reglet-launcher/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

// probe collects values reported by guests through probe.report.
type probe struct {
	mu         sync.Mutex
	values     []int32
	identities []hostfuncs.ModuleIdentity
	contexts   []*IsolatedContext
}

func (p *probe) module() HostModuleFunc {
	return func(ctx context.Context, r wazero.Runtime) error {
		_, err := r.NewHostModuleBuilder("probe").
			NewFunctionBuilder().
			WithFunc(func(ctx context.Context, v int32) {
				p.mu.Lock()
				defer p.mu.Unlock()
				p.values = append(p.values, v)
				id, _ := hostfuncs.ModuleIdentityFrom(ctx)
				p.identities = append(p.identities, id)
				ic, _ := IsolatedContextFrom(ctx)
				p.contexts = append(p.contexts, ic)
			}).
			Export("report").
			Instantiate(ctx)
		return err
	}
}

func (p *probe) reported() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int32(nil), p.values...)
}

// constHost is a host module named name exporting value() -> v.
func constHost(name string, v int32) HostModuleFunc {
	return func(ctx context.Context, r wazero.Runtime) error {
		_, err := r.NewHostModuleBuilder(name).
			NewFunctionBuilder().
			WithFunc(func() int32 { return v }).
			Export("value").
			Instantiate(ctx)
		return err
	}
}

func newTestLoader(t *testing.T, p *probe, opts ...LoaderOption) *Loader {
	t.Helper()

	base := []LoaderOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHostModule("probe", p.module()),
		WithHostModule("dep", constHost("dep", 1)),
	}
	l, err := NewLoader(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

// launch loads, resolves and invokes archivePath.
func launch(t *testing.T, l *Loader, archivePath string, inv Invocation) error {
	t.Helper()
	ctx := context.Background()

	ic, err := l.Load(ctx, archivePath)
	if err != nil {
		return err
	}
	defer ic.Close(ctx)

	ep, err := l.ResolveEntryPoint(ctx, ic)
	if err != nil {
		return err
	}
	return ep.Invoke(ctx, inv)
}

func TestLoader_BundledModuleShadowsHost(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	path := testutil.WriteArchive(t, t.TempDir(), "orders.zip", map[string][]byte{
		"module.yaml": testutil.Manifest("app"),
		"app.wasm":    testutil.ReportingEntry(),
		"dep.wasm":    testutil.ConstModule(2),
	})

	ctx := context.Background()
	ic, err := l.Load(ctx, path)
	require.NoError(t, err)
	defer ic.Close(ctx)

	assert.Equal(t, []string{"app", "dep"}, ic.SearchPath().Names(LayerArchive))

	ep, err := l.ResolveEntryPoint(ctx, ic)
	require.NoError(t, err)
	assert.Equal(t, "app:_start", ep.ID().String())
	assert.Equal(t, LayerArchive, ep.Source().Layer)

	linked := ic.Linked()
	assert.Equal(t, LayerArchive, linked["dep"].Layer)
	assert.Equal(t, LayerHost, linked["probe"].Layer)

	require.NoError(t, ep.Invoke(ctx, Invocation{Args: []string{"fixture"}}))
	assert.Equal(t, []int32{2}, p.reported())
}

func TestLoader_DeclaredDependencyShadowsHost(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	home := t.TempDir()
	testutil.WriteFile(t, home, filepath.Join("lib", "dep.wasm"), testutil.ConstModule(3))
	path := testutil.WriteArchive(t, home, "orders.zip", map[string][]byte{
		"module.yaml": []byte("start: app\ndependencies: [dep]\n"),
		"app.wasm":    testutil.ReportingEntry(),
	})

	require.NoError(t, launch(t, l, path, Invocation{}))
	assert.Equal(t, []int32{3}, p.reported())
}

func TestLoader_BundledModuleShadowsDeclaredDependency(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	home := t.TempDir()
	testutil.WriteFile(t, home, filepath.Join("lib", "dep.wasm"), testutil.ConstModule(3))
	path := testutil.WriteArchive(t, home, "orders.zip", map[string][]byte{
		"module.yaml": []byte("start: app\ndependencies: [dep]\n"),
		"app.wasm":    testutil.ReportingEntry(),
		"dep.wasm":    testutil.ConstModule(2),
	})

	require.NoError(t, launch(t, l, path, Invocation{}))
	assert.Equal(t, []int32{2}, p.reported())
}

func TestLoader_UndeclaredLibraryIsInvisible(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	home := t.TempDir()
	testutil.WriteFile(t, home, filepath.Join("lib", "dep.wasm"), testutil.ConstModule(3))
	path := testutil.WriteArchive(t, home, "orders.zip", map[string][]byte{
		"module.yaml": testutil.Manifest("app"),
		"app.wasm":    testutil.ReportingEntry(),
	})

	require.NoError(t, launch(t, l, path, Invocation{}))
	assert.Equal(t, []int32{1}, p.reported())
}

func TestLoader_WithLibraryDir(t *testing.T) {
	p := &probe{}
	libs := t.TempDir()
	testutil.WriteFile(t, libs, "dep.wasm", testutil.ConstModule(7))
	l := newTestLoader(t, p, WithLibraryDir(libs))
	path := testutil.WriteArchive(t, t.TempDir(), "orders.zip", map[string][]byte{
		"module.yaml": []byte("start: app\ndependencies: [dep]\n"),
		"app.wasm":    testutil.ReportingEntry(),
	})

	require.NoError(t, launch(t, l, path, Invocation{}))
	assert.Equal(t, []int32{7}, p.reported())
}

func TestLoader_ContextsAreIsolated(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	dir := t.TempDir()

	values := []int32{10, 20, 30, 40}
	paths := make([]string, len(values))
	for i, v := range values {
		paths[i] = testutil.WriteArchive(t, dir, filepath.Base(t.Name())+string(rune('a'+i))+".zip", map[string][]byte{
			"module.yaml": testutil.Manifest("app"),
			"app.wasm":    testutil.ReportingEntry(),
			"dep.wasm":    testutil.ConstModule(v),
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(paths))
	for i, path := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = launch(t, l, path, Invocation{})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, values, p.reported())
}

func TestEntryPoint_ContextRebinding(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	path := testutil.WriteArchive(t, t.TempDir(), "orders.zip", map[string][]byte{
		"module.yaml": testutil.Manifest("app"),
		"app.wasm":    testutil.ProbeEntry(5),
	})

	ctx := context.Background()
	ic, err := l.Load(ctx, path)
	require.NoError(t, err)
	defer ic.Close(ctx)
	ep, err := l.ResolveEntryPoint(ctx, ic)
	require.NoError(t, err)

	identity := hostfuncs.ModuleIdentity{Name: "orders", Namespace: "module-8085", Port: 8085}
	require.NoError(t, ep.Invoke(ctx, Invocation{Identity: identity}))

	require.Len(t, p.contexts, 1)
	assert.Same(t, ic, p.contexts[0])
	assert.Equal(t, identity, p.identities[0])
	assert.Equal(t, "orders", ic.Manifest().Name)
}

func TestEntryPoint_ArgsDelivered(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	path := testutil.WriteArchive(t, t.TempDir(), "orders.zip", map[string][]byte{
		"module.yaml": testutil.Manifest("app"),
		"app.wasm":    testutil.ArgcEntry(),
	})

	args := []string{"orders", "--launcher.namespace=module-8080", "--server.port=8080"}
	require.NoError(t, launch(t, l, path, Invocation{Args: args}))
	assert.Equal(t, []int32{3}, p.reported())
}

func TestEntryPoint_Exit(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	dir := t.TempDir()

	t.Run("zero is success", func(t *testing.T) {
		path := testutil.WriteArchive(t, dir, "ok.zip", map[string][]byte{
			"module.yaml": testutil.Manifest("app"),
			"app.wasm":    testutil.ExitEntry(0),
		})
		assert.NoError(t, launch(t, l, path, Invocation{}))
	})

	t.Run("non-zero fails", func(t *testing.T) {
		path := testutil.WriteArchive(t, dir, "bad.zip", map[string][]byte{
			"module.yaml": testutil.Manifest("app"),
			"app.wasm":    testutil.ExitEntry(3),
		})
		err := launch(t, l, path, Invocation{})
		var invErr *errors.EntryPointInvocationError
		require.ErrorAs(t, err, &invErr)
		assert.Equal(t, errors.KindEntryPointInvocationFailed, errors.KindOf(err))
	})
}

func TestEntryPoint_Trap(t *testing.T) {
	p := &probe{}
	l := newTestLoader(t, p)
	path := testutil.WriteArchive(t, t.TempDir(), "trap.zip", map[string][]byte{
		"module.yaml": testutil.Manifest("app"),
		"app.wasm":    testutil.TrapEntry(),
	})

	running := false
	err := launch(t, l, path, Invocation{OnRunning: func() { running = true }})

	assert.True(t, running)
	var invErr *errors.EntryPointInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "app:_start", invErr.Identifier)
	assert.Equal(t, path, invErr.Path)
}

func TestLoader_ArchiveUnreadable(t *testing.T) {
	l := newTestLoader(t, &probe{})
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.zip")},
		{name: "not a zip", path: testutil.WriteFile(t, dir, "junk.zip", []byte("junk"))},
		{name: "malformed manifest", path: testutil.WriteArchive(t, dir, "bad.zip", map[string][]byte{
			"module.yaml": []byte("start: [app\n"),
		})},
		{name: "unknown manifest key", path: testutil.WriteArchive(t, dir, "typo.zip", map[string][]byte{
			"module.yaml": []byte("start: app\nlistner: true\n"),
		})},
		{name: "invalid dependency", path: testutil.WriteArchive(t, dir, "deps.zip", map[string][]byte{
			"module.yaml": []byte("start: app\ndependencies: ['']\n"),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.path)
			var archErr *errors.ArchiveUnreadableError
			require.ErrorAs(t, err, &archErr)
			assert.Equal(t, tt.path, archErr.Path)
		})
	}
}

func TestLoader_EntryPointMissing(t *testing.T) {
	l := newTestLoader(t, &probe{})
	dir := t.TempDir()

	tests := []struct {
		name  string
		files map[string][]byte
	}{
		{name: "no manifest", files: map[string][]byte{"app.wasm": testutil.NoopEntry()}},
		{name: "no start", files: map[string][]byte{"module.yaml": []byte("name: orders\n")}},
		{name: "blank start", files: map[string][]byte{"module.yaml": []byte("start: '  '\n")}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteArchive(t, dir, string(rune('a'+i))+".zip", tt.files)
			_, err := l.Load(context.Background(), path)
			var missing *errors.EntryPointMissingError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, "start", missing.Key)
			assert.Equal(t, errors.KindEntryPointMissing, errors.KindOf(err))
		})
	}
}

func TestLoader_EntryPointUnresolvable(t *testing.T) {
	l := newTestLoader(t, &probe{})
	dir := t.TempDir()

	tests := []struct {
		name    string
		files   map[string][]byte
		wantMsg string
	}{
		{
			name:    "unknown module",
			files:   map[string][]byte{"module.yaml": testutil.Manifest("ghost")},
			wantMsg: `module "ghost" not found`,
		},
		{
			name: "unknown export",
			files: map[string][]byte{
				"module.yaml": testutil.Manifest("app:serve"),
				"app.wasm":    testutil.NoopEntry(),
			},
			wantMsg: `exports no function "serve"`,
		},
		{
			name: "wrong signature",
			files: map[string][]byte{
				"module.yaml": testutil.Manifest("app"),
				"app.wasm":    testutil.WrongSignatureEntry(),
			},
			wantMsg: "want () -> ()",
		},
		{
			name: "unresolved import",
			files: map[string][]byte{
				"module.yaml": testutil.Manifest("app"),
				"app.wasm":    testutil.MissingImportEntry(),
			},
			wantMsg: `module "nowhere" imported by "app" not found`,
		},
		{
			name: "missing declared dependency",
			files: map[string][]byte{
				"module.yaml": []byte("start: app\ndependencies: [ghost]\n"),
				"app.wasm": testutil.WasmModule{
					Imports: []testutil.WasmImport{{Module: "ghost", Name: "value", Results: []byte{testutil.I32}}},
					Funcs:   []testutil.WasmFunc{{Export: "_start"}},
				}.Encode(),
			},
			wantMsg: `read dependency "ghost"`,
		},
		{
			name:    "host module as entry",
			files:   map[string][]byte{"module.yaml": testutil.Manifest("wasi_snapshot_preview1")},
			wantMsg: "provided by the host",
		},
		{
			name: "not wasm",
			files: map[string][]byte{
				"module.yaml": testutil.Manifest("app"),
				"app.wasm":    []byte("not wasm"),
			},
			wantMsg: "compile archive module",
		},
		{
			name:    "empty export",
			files:   map[string][]byte{"module.yaml": testutil.Manifest("app:")},
			wantMsg: "names no export",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			path := testutil.WriteArchive(t, dir, string(rune('a'+i))+".zip", tt.files)

			ic, err := l.Load(ctx, path)
			require.NoError(t, err)
			defer ic.Close(ctx)

			_, err = l.ResolveEntryPoint(ctx, ic)
			var unres *errors.EntryPointUnresolvableError
			require.ErrorAs(t, err, &unres)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, path, unres.Path)
		})
	}
}

func TestLoader_ImportCycle(t *testing.T) {
	l := newTestLoader(t, &probe{})
	imports := func(module string) []byte {
		return testutil.WasmModule{
			Imports: []testutil.WasmImport{{Module: module, Name: "value", Results: []byte{testutil.I32}}},
			Funcs: []testutil.WasmFunc{
				{Export: "value", Results: []byte{testutil.I32}, Body: testutil.I32Const(0)},
				{Export: "_start"},
			},
		}.Encode()
	}
	path := testutil.WriteArchive(t, t.TempDir(), "cycle.zip", map[string][]byte{
		"module.yaml": testutil.Manifest("app"),
		"app.wasm":    imports("left"),
		"left.wasm":   imports("right"),
		"right.wasm":  imports("left"),
	})

	err := launch(t, l, path, Invocation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import cycle: app -> left -> right -> left")
	assert.True(t, stdErrors.As(err, new(*errors.EntryPointUnresolvableError)))
}

func TestIsolatedContext_CloseTwice(t *testing.T) {
	l := newTestLoader(t, &probe{})
	path := testutil.WriteArchive(t, t.TempDir(), "orders.zip", map[string][]byte{
		"module.yaml": testutil.Manifest("app"),
		"app.wasm":    testutil.NoopEntry(),
	})

	ctx := context.Background()
	ic, err := l.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, ic.ArchivePath())
	assert.Equal(t, "orders", ic.Manifest().Name)
	require.NoError(t, ic.Close(ctx))
	require.NoError(t, ic.Close(ctx))
}

func TestLoader_ManifestName(t *testing.T) {
	l := newTestLoader(t, &probe{})
	dir := t.TempDir()

	tests := []struct {
		name     string
		archive  string
		manifest []byte
		want     string
	}{
		{name: "taken from archive file", archive: "orders.zip", manifest: testutil.Manifest("app"), want: "orders"},
		{name: "declared in manifest", archive: "billing.zip", manifest: []byte("name: invoices\nstart: app\n"), want: "invoices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteArchive(t, dir, tt.archive, map[string][]byte{
				"module.yaml": tt.manifest,
				"app.wasm":    testutil.NoopEntry(),
			})

			ic, err := l.Load(context.Background(), path)
			require.NoError(t, err)
			defer ic.Close(context.Background())
			assert.Equal(t, tt.want, ic.Manifest().Name)
		})
	}
}
