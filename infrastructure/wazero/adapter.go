package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	// DefaultModuleName is the import module name of the launcher's host functions.
	DefaultModuleName = "reglet_launcher"

	// DefaultMaxRequestSize bounds a single request read from guest memory.
	DefaultMaxRequestSize uint32 = 1 << 20
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	Logger *slog.Logger

	// ModuleName is the host module name (default: "reglet_launcher").
	ModuleName string

	CustomHandlers []CustomHandler

	// MaxRequestSize limits the size of incoming requests from guest memory.
	MaxRequestSize uint32
}

// CustomHandler is a wazero handler that does not follow the packed
// i64 request/response convention.
type CustomHandler struct {
	Handler     api.GoModuleFunc
	Name        string
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name.
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

// WithLogger sets the logger used for adapter failures.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		c.Logger = logger
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     DefaultModuleName,
		MaxRequestSize: DefaultMaxRequestSize,
		Logger:         slog.Default(),
	}
}

// RegisterWithRuntime instantiates a host module on runtime exporting every
// handler in registry, plus any custom handlers.
//
// Each registry handler is wrapped to:
//   - read the request bytes addressed by the packed i64 argument
//   - invoke the ByteHandler
//   - copy the response into memory from the guest's "allocate" export
//   - return the packed pointer and length of the response
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	if registry != nil {
		for _, name := range registry.Names() {
			funcName := name
			builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
					handleRegistryCall(ctx, mod, stack, registry, funcName, cfg)
				}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
				Export(funcName)
		}
	}

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			Export(ch.Name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %q: %w", cfg.ModuleName, err)
	}
	return nil
}

func handleRegistryCall(ctx context.Context, mod api.Module, stack []uint64, registry *hostfuncs.HandlerRegistry, name string, cfg AdapterConfig) {
	logger := cfg.Logger.With("function", name, "caller", ModuleName(ctx, mod))
	ptr, length := unpackPtrLen(stack[0])

	if length > cfg.MaxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		logger.ErrorContext(ctx, "wazero: "+msg)
		stack[0] = writeResponse(ctx, logger, mod, hostfuncs.NewValidationError(msg).ToJSON())
		return
	}

	request, ok := readGuest(mod, ptr, length)
	if !ok {
		logger.ErrorContext(ctx, "wazero: failed to read request from guest memory")
		stack[0] = writeResponse(ctx, logger, mod, hostfuncs.NewInternalError("failed to read request from guest memory").ToJSON())
		return
	}

	response, err := registry.Invoke(ctx, name, request)
	if err != nil {
		logger.ErrorContext(ctx, "wazero: handler invocation failed", "error", err)
		stack[0] = writeResponse(ctx, logger, mod, hostfuncs.NewInternalError(err.Error()).ToJSON())
		return
	}

	stack[0] = writeResponse(ctx, logger, mod, response)
}

// readGuest copies length bytes at ptr out of guest memory. A zero length
// reads nothing and succeeds.
func readGuest(mod api.Module, ptr, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, false
	}
	view, ok := mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), view...), true
}

// writeResponse allocates guest memory and copies data into it. It returns
// the packed pointer and length, or 0 when the guest cannot receive it.
func writeResponse(ctx context.Context, logger *slog.Logger, mod api.Module, data []byte) uint64 {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		logger.ErrorContext(ctx, "wazero: guest module missing 'allocate' export")
		return 0
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		logger.ErrorContext(ctx, "wazero: failed to call guest allocate", "error", err)
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if mod.Memory() == nil || !mod.Memory().Write(ptr, data) {
		logger.ErrorContext(ctx, "wazero: failed to write response to guest memory")
		return 0
	}

	return packPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: bounded by guest memory
}

// packPtrLen packs a pointer and length into a single i64.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}
