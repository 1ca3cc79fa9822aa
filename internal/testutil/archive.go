package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteArchive writes a zip archive at dir/name holding files and returns
// its path. Entries are written in sorted order.
func WriteArchive(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write(files[n])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return p
}

// WriteFile writes data at dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel string, data []byte) string {
	t.Helper()

	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

// ConstModule exports value() -> i32 returning v.
func ConstModule(v int32) []byte {
	return WasmModule{
		Funcs: []WasmFunc{{Export: "value", Results: []byte{I32}, Body: I32Const(v)}},
	}.Encode()
}

// ReportingEntry imports dep.value and probe.report and exports _start,
// which reports the value it gets from dep.
func ReportingEntry() []byte {
	return WasmModule{
		Imports: []WasmImport{
			{Module: "dep", Name: "value", Results: []byte{I32}},
			{Module: "probe", Name: "report", Params: []byte{I32}},
		},
		Funcs: []WasmFunc{{Export: "_start", Body: Seq(Call(0), Call(1))}},
	}.Encode()
}

// NoopEntry exports an empty _start.
func NoopEntry() []byte {
	return WasmModule{Funcs: []WasmFunc{{Export: "_start"}}}.Encode()
}

// TrapEntry exports a _start that traps immediately.
func TrapEntry() []byte {
	return WasmModule{Funcs: []WasmFunc{{Export: "_start", Body: Unreachable()}}}.Encode()
}

// WrongSignatureEntry exports a _start that takes an i32 parameter.
func WrongSignatureEntry() []byte {
	return WasmModule{Funcs: []WasmFunc{{Export: "_start", Params: []byte{I32}}}}.Encode()
}

// MissingImportEntry imports a module nobody provides.
func MissingImportEntry() []byte {
	return WasmModule{
		Imports: []WasmImport{{Module: "nowhere", Name: "value", Results: []byte{I32}}},
		Funcs:   []WasmFunc{{Export: "_start", Body: Seq(Call(0), Drop())}},
	}.Encode()
}

// Manifest returns a minimal module.yaml with the given start identifier.
// It names no module, so the loader takes the name from the archive file.
func Manifest(start string) []byte {
	return []byte("version: 1.0.0\nstart: " + strconv.Quote(start) + "\n")
}

// requestOffset is where HostCaller and LogEmitter place their payload.
const requestOffset = 16

// HostCaller imports module.function with the packed i64 convention and
// exports call() -> i64, which passes request to it and returns the packed
// response. allocate always hands out offset 1024.
func HostCaller(module, function string, request []byte) []byte {
	return WasmModule{
		Memory: true,
		Data:   []WasmData{{Offset: requestOffset, Bytes: request}},
		Imports: []WasmImport{
			{Module: module, Name: function, Params: []byte{I64}, Results: []byte{I64}},
		},
		Funcs: []WasmFunc{
			{Export: "allocate", Params: []byte{I32}, Results: []byte{I32}, Body: I32Const(1024)},
			{Export: "call", Results: []byte{I64}, Body: Seq(
				I64Const(PackPtrLen(requestOffset, uint32(len(request)))),
				Call(0),
			)},
		},
	}.Encode()
}

// LogEmitter imports module.log_message and exports emit(), which sends
// record to it.
func LogEmitter(module string, record []byte) []byte {
	return WasmModule{
		Memory:  true,
		Data:    []WasmData{{Offset: requestOffset, Bytes: record}},
		Imports: []WasmImport{{Module: module, Name: "log_message", Params: []byte{I64}}},
		Funcs: []WasmFunc{
			{Export: "emit", Body: Seq(
				I64Const(PackPtrLen(requestOffset, uint32(len(record)))),
				Call(0),
			)},
		},
	}.Encode()
}

// ArgcEntry imports wasi args_sizes_get and probe.report and exports a
// _start that reports argc.
func ArgcEntry() []byte {
	return WasmModule{
		Memory: true,
		Imports: []WasmImport{
			{Module: "wasi_snapshot_preview1", Name: "args_sizes_get", Params: []byte{I32, I32}, Results: []byte{I32}},
			{Module: "probe", Name: "report", Params: []byte{I32}},
		},
		Funcs: []WasmFunc{{Export: "_start", Body: Seq(
			I32Const(0), I32Const(4), Call(0), Drop(),
			I32Const(0), I32Load(0), Call(1),
		)}},
	}.Encode()
}

// ExitEntry exports a _start that calls wasi proc_exit with code.
func ExitEntry(code int32) []byte {
	return WasmModule{
		Imports: []WasmImport{{Module: "wasi_snapshot_preview1", Name: "proc_exit", Params: []byte{I32}}},
		Funcs:   []WasmFunc{{Export: "_start", Body: Seq(I32Const(code), Call(0))}},
	}.Encode()
}

// ProbeEntry imports probe.report and exports _start reporting v.
func ProbeEntry(v int32) []byte {
	return WasmModule{
		Imports: []WasmImport{{Module: "probe", Name: "report", Params: []byte{I32}}},
		Funcs:   []WasmFunc{{Export: "_start", Body: Seq(I32Const(v), Call(0))}},
	}.Encode()
}
