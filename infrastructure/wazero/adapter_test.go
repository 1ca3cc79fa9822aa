package wazero

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	"github.com/reglet-dev/reglet-launcher/internal/testutil"
	launcherlog "github.com/reglet-dev/reglet-launcher/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := defaultAdapterConfig()
	assert.Equal(t, "reglet_launcher", cfg.ModuleName)
	assert.Equal(t, DefaultMaxRequestSize, cfg.MaxRequestSize)
	assert.NotNil(t, cfg.Logger)
}

func TestAdapterOptions(t *testing.T) {
	cfg := defaultAdapterConfig()
	WithModuleName("custom_module")(&cfg)
	WithMaxRequestSize(2048)(&cfg)
	WithCustomHandler(CustomHandler{Name: "test_handler"})(&cfg)

	assert.Equal(t, "custom_module", cfg.ModuleName)
	assert.Equal(t, uint32(2048), cfg.MaxRequestSize)
	require.Len(t, cfg.CustomHandlers, 1)
	assert.Equal(t, "test_handler", cfg.CustomHandlers[0].Name)
}

func TestPackUnpackPtrLen(t *testing.T) {
	tests := []struct {
		ptr    uint32
		length uint32
	}{
		{0, 0},
		{1, 1},
		{0xFFFFFFFF, 0xFFFFFFFF},
		{0x12345678, 0x9ABCDEF0},
		{100, 50},
	}

	for _, tt := range tests {
		gotPtr, gotLen := unpackPtrLen(packPtrLen(tt.ptr, tt.length))
		assert.Equal(t, tt.ptr, gotPtr)
		assert.Equal(t, tt.length, gotLen)
	}
}

// instantiateGuest registers registry on a fresh runtime and instantiates
// guest against it.
func instantiateGuest(t *testing.T, ctx context.Context, registry *hostfuncs.HandlerRegistry, guest []byte, opts ...AdapterOption) api.Module {
	t.Helper()

	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	require.NoError(t, RegisterWithRuntime(ctx, rt, registry, opts...))
	mod, err := rt.InstantiateWithConfig(ctx, guest, wazero.NewModuleConfig().WithName("guest"))
	require.NoError(t, err)
	return mod
}

// callPacked invokes export and returns the response it points at.
func callPacked(t *testing.T, ctx context.Context, mod api.Module, export string) []byte {
	t.Helper()

	results, err := mod.ExportedFunction(export).Call(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)

	ptr, length := unpackPtrLen(results[0])
	require.Equal(t, uint32(1024), ptr)
	data, ok := mod.Memory().Read(ptr, length)
	require.True(t, ok)
	return data
}

func TestRegisterWithRuntime_ModuleInfo(t *testing.T) {
	ctx := hostfuncs.WithModuleIdentity(context.Background(), hostfuncs.ModuleIdentity{
		Name:      "orders",
		Namespace: "module-8080",
		Port:      8080,
	})
	registry, err := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.LauncherBundle()))
	require.NoError(t, err)

	mod := instantiateGuest(t, ctx, registry, testutil.HostCaller(DefaultModuleName, "module_info", []byte("{}")))

	var info hostfuncs.ModuleInfoResponse
	require.NoError(t, json.Unmarshal(callPacked(t, ctx, mod, "call"), &info))
	assert.Equal(t, "orders", info.Name)
	assert.Equal(t, 8080, info.Port)
}

func TestRegisterWithRuntime_RequestTooLarge(t *testing.T) {
	registry, err := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.LauncherBundle()))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := context.Background()
	mod := instantiateGuest(t, ctx, registry,
		testutil.HostCaller(DefaultModuleName, "module_info", []byte(`{"padding":"xxxxxxxx"}`)),
		WithMaxRequestSize(4), WithLogger(logger))

	var resp hostfuncs.ErrorResponse
	require.NoError(t, json.Unmarshal(callPacked(t, ctx, mod, "call"), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)
	assert.Contains(t, buf.String(), "exceeds maximum")
}

func TestLogMessageHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	record, err := json.Marshal(launcherlog.LogMessageWire{
		Level:   "INFO",
		Message: "listening",
		Attrs:   []launcherlog.LogAttrWire{{Key: "addr", Type: "string", Value: ":8081"}},
	})
	require.NoError(t, err)

	ctx := hostfuncs.WithModuleIdentity(context.Background(), hostfuncs.ModuleIdentity{
		Name:      "billing",
		Namespace: "module-8081",
		Port:      8081,
	})
	mod := instantiateGuest(t, ctx, nil, testutil.LogEmitter(DefaultModuleName, record),
		WithCustomHandler(LogMessageHandler(logger)))
	_, err = mod.ExportedFunction("emit").Call(ctx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "msg=listening")
	assert.Contains(t, out, "module=billing")
	assert.Contains(t, out, "port=8081")
	assert.Contains(t, out, "addr=:8081")
}

func TestLogMessageHandler_Malformed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := context.Background()
	mod := instantiateGuest(t, ctx, nil, testutil.LogEmitter(DefaultModuleName, []byte("{oops")),
		WithCustomHandler(LogMessageHandler(logger)))
	_, err := mod.ExportedFunction("emit").Call(ctx)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "malformed log record")
	assert.Contains(t, buf.String(), "caller=guest")
}
