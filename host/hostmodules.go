package host

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	infrawazero "github.com/reglet-dev/reglet-launcher/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// builtinHostModules are always on the host layer of a search path.
func builtinHostModules(registry *hostfuncs.HandlerRegistry, logger *slog.Logger) map[string]HostModuleFunc {
	return map[string]HostModuleFunc{
		wasi_snapshot_preview1.ModuleName: func(ctx context.Context, r wazero.Runtime) error {
			_, err := wasi_snapshot_preview1.Instantiate(ctx, r)
			return err
		},
		infrawazero.DefaultModuleName: func(ctx context.Context, r wazero.Runtime) error {
			return infrawazero.RegisterWithRuntime(ctx, r, registry,
				infrawazero.WithLogger(logger),
				infrawazero.WithCustomHandler(infrawazero.LogMessageHandler(logger)),
			)
		},
	}
}

// defaultRegistry exports the launcher bundle with panic recovery and
// debug logging.
func defaultRegistry(logger *slog.Logger) (*hostfuncs.HandlerRegistry, error) {
	return hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(logger),
		),
		hostfuncs.WithBundle(hostfuncs.LauncherBundle()),
	)
}
