package hostfuncs

import (
	"context"
	"os"
	"time"
)

// HostFuncBundle is a pre-configured set of related host functions.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// ModuleInfoRequest is the (empty) request of module_info.
type ModuleInfoRequest struct{}

// ModuleInfoResponse tells a module who it is and where it should listen.
type ModuleInfoResponse struct {
	ModuleIdentity
	Host      string    `json:"host"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// ModuleInfo answers a module_info call from the identity in ctx.
func ModuleInfo(ctx context.Context, _ ModuleInfoRequest) ModuleInfoResponse {
	id, ok := ModuleIdentityFrom(ctx)
	if !ok {
		return ModuleInfoResponse{Error: "no module identity bound to this call"}
	}
	host, _ := os.Hostname()
	return ModuleInfoResponse{ModuleIdentity: id, Host: host, StartedAt: startedAtFrom(ctx)}
}

type startedAtKey struct{}

// WithStartedAt records when the calling module was invoked.
func WithStartedAt(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startedAtKey{}, t)
}

func startedAtFrom(ctx context.Context) time.Time {
	t, _ := ctx.Value(startedAtKey{}).(time.Time)
	return t
}

// LauncherBundle returns the host functions every module can import from
// the launcher host module: module_info.
func LauncherBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"module_info": NewJSONHandler(ModuleInfo),
		},
	}
}
