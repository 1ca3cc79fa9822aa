package host

import (
	"context"
	"crypto/rand"
	stdErrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/errors"
	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/experimental/sock"
	"github.com/tetratelabs/wazero/sys"
)

// EntryPoint is a resolved, linked entry point ready to be invoked once.
type EntryPoint struct {
	ic       *IsolatedContext
	compiled wazero.CompiledModule
	source   Source
	id       entities.EntryPointID
}

// ID returns the resolved identifier.
func (e *EntryPoint) ID() entities.EntryPointID {
	return e.id
}

// Source returns where the entry module was found.
func (e *EntryPoint) Source() Source {
	return e.source
}

// Invocation carries what a launch hands to its entry point.
type Invocation struct {
	// Env is exposed to the guest in addition to the manifest's env.
	Env map[string]string

	// OnRunning is called once the module is instantiated, right before
	// control passes to the export.
	OnRunning func()

	// Identity is visible to host functions called by the module.
	Identity hostfuncs.ModuleIdentity

	// Args is the full argv, program name first.
	Args []string

	// Port is preopened as a TCP listener when the manifest asks for one.
	Port int
}

// Invoke instantiates the entry module and calls its export, blocking
// until the export returns. A WASI exit with code 0 counts as success.
// Cancelling ctx stops the module.
func (e *EntryPoint) Invoke(ctx context.Context, inv Invocation) error {
	ic := e.ic
	failed := func(cause error) error {
		return &errors.EntryPointInvocationError{Path: ic.archivePath, Identifier: e.id.String(), Err: cause}
	}

	cfg := wazero.NewModuleConfig().
		WithName(e.id.Module).
		WithArgs(inv.Args...).
		WithStartFunctions().
		WithStdout(ic.stdout).
		WithStderr(ic.stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)
	for _, kv := range mergeEnv(ic.manifest.Env, inv.Env) {
		cfg = cfg.WithEnv(kv[0], kv[1])
	}

	if ic.manifest.Listener && inv.Port > 0 {
		ctx = sock.WithConfig(ctx, sock.NewConfig().WithTCPListener("", inv.Port))
	}
	ctx = WithIsolatedContext(ctx, ic)
	ctx = hostfuncs.WithModuleIdentity(ctx, inv.Identity)
	ctx = hostfuncs.WithStartedAt(ctx, time.Now())

	mod, err := ic.runtime.InstantiateModule(ctx, e.compiled, cfg)
	if err != nil {
		return failed(fmt.Errorf("instantiate: %w", err))
	}
	defer func() {
		if err := mod.Close(context.WithoutCancel(ctx)); err != nil {
			ic.logger.DebugContext(ctx, "failed to close module", "module", e.id.Module, "error", err)
		}
	}()

	fn := mod.ExportedFunction(e.id.Export)
	if fn == nil {
		return failed(fmt.Errorf("export %q vanished after instantiation", e.id.Export))
	}

	if inv.OnRunning != nil {
		inv.OnRunning()
	}

	if _, err := fn.Call(ctx); err != nil {
		var exitErr *sys.ExitError
		if stdErrors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			return nil
		}
		return failed(err)
	}
	return nil
}

// mergeEnv combines manifest and launch environments, launch values
// winning, in key order.
func mergeEnv(manifest, launch map[string]string) [][2]string {
	merged := make(map[string]string, len(manifest)+len(launch))
	for k, v := range manifest {
		merged[k] = v
	}
	for k, v := range launch {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, merged[k]})
	}
	return out
}
