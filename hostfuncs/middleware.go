package hostfuncs

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps outermost).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware converts handler panics into structured
// ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware logs every host call at debug level with the calling
// module's identity.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			funcName := "unknown"
			if hc, ok := ctx.(HostContext); ok {
				funcName = hc.FunctionName()
			}
			attrs := []any{"function", funcName}
			if id, ok := ModuleIdentityFrom(ctx); ok {
				attrs = append(attrs, "module", id.Name, "port", id.Port)
			}

			start := time.Now()
			resp, err := next(ctx, payload)
			attrs = append(attrs, "duration", time.Since(start))
			if err != nil {
				logger.WarnContext(ctx, "host function failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "host function completed", attrs...)
			}
			return resp, err
		}
	}
}
