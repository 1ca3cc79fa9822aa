package wazero

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	launcherlog "github.com/reglet-dev/reglet-launcher/log"
	"github.com/tetratelabs/wazero/api"
)

// LogMessageFunction is the export name of the log relay.
const LogMessageFunction = "log_message"

// LogMessageHandler returns the custom handler behind log_message. It
// decodes a LogMessageWire from guest memory and re-emits it on logger,
// tagged with the calling module's identity. Malformed records are dropped.
func LogMessageHandler(logger *slog.Logger) CustomHandler {
	return CustomHandler{
		Name:       LogMessageFunction,
		ParamTypes: []api.ValueType{api.ValueTypeI64},
		Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, length := unpackPtrLen(stack[0])
			if length > DefaultMaxRequestSize {
				logger.WarnContext(ctx, "wazero: log record too large", "size", length, "caller", ModuleName(ctx, mod))
				return
			}
			payload, ok := readGuest(mod, ptr, length)
			if !ok {
				logger.WarnContext(ctx, "wazero: failed to read log record", "caller", ModuleName(ctx, mod))
				return
			}
			msg, err := launcherlog.DecodeMessage(payload)
			if err != nil {
				logger.WarnContext(ctx, "wazero: malformed log record", "caller", ModuleName(ctx, mod), "error", err)
				return
			}
			launcherlog.Relay(ctx, logger, msg, identityAttrs(ctx, mod)...)
		}),
	}
}

func identityAttrs(ctx context.Context, mod api.Module) []slog.Attr {
	id, ok := hostfuncs.ModuleIdentityFrom(ctx)
	if !ok {
		return []slog.Attr{slog.String("module", ModuleName(ctx, mod))}
	}
	return []slog.Attr{
		slog.String("module", id.Name),
		slog.String("namespace", id.Namespace),
		slog.Int("port", id.Port),
	}
}
