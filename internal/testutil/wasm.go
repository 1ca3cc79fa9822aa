package testutil

// WebAssembly value types and opcodes used by test fixtures.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e

	opUnreachable byte = 0x00
	opEnd         byte = 0x0b
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opI32Load     byte = 0x28
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
)

// WasmImport is an imported function.
type WasmImport struct {
	Module  string
	Name    string
	Params  []byte
	Results []byte
}

// WasmFunc is a function defined by the module. Body holds the instruction
// bytes without the trailing end opcode.
type WasmFunc struct {
	Export  string
	Params  []byte
	Results []byte
	Body    []byte
}

// WasmData is an active data segment placed at Offset in memory 0.
type WasmData struct {
	Bytes  []byte
	Offset int32
}

// WasmModule describes a tiny WebAssembly module. Function indices follow
// the binary format: imports first, then Funcs in order. Memory adds one
// exported page named "memory".
type WasmModule struct {
	Imports []WasmImport
	Funcs   []WasmFunc
	Data    []WasmData
	Memory  bool
}

// Encode returns the module in the WebAssembly binary format.
func (m WasmModule) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	types := make([][]byte, 0, len(m.Imports)+len(m.Funcs))
	for _, imp := range m.Imports {
		types = append(types, funcType(imp.Params, imp.Results))
	}
	for _, fn := range m.Funcs {
		types = append(types, funcType(fn.Params, fn.Results))
	}
	if len(types) > 0 {
		out = append(out, section(1, vec(types))...)
	}

	if len(m.Imports) > 0 {
		imports := make([][]byte, 0, len(m.Imports))
		for i, imp := range m.Imports {
			entry := append(encName(imp.Module), encName(imp.Name)...)
			entry = append(entry, 0x00)
			entry = append(entry, uleb(uint32(i))...)
			imports = append(imports, entry)
		}
		out = append(out, section(2, vec(imports))...)
	}

	if len(m.Funcs) > 0 {
		funcs := make([][]byte, 0, len(m.Funcs))
		for i := range m.Funcs {
			funcs = append(funcs, uleb(uint32(len(m.Imports)+i)))
		}
		out = append(out, section(3, vec(funcs))...)
	}

	if m.Memory {
		out = append(out, section(5, vec([][]byte{{0x00, 0x01}}))...)
	}

	var exports [][]byte
	if m.Memory {
		exports = append(exports, append(encName("memory"), 0x02, 0x00))
	}
	for i, fn := range m.Funcs {
		if fn.Export == "" {
			continue
		}
		entry := append(encName(fn.Export), 0x00)
		entry = append(entry, uleb(uint32(len(m.Imports)+i))...)
		exports = append(exports, entry)
	}
	if len(exports) > 0 {
		out = append(out, section(7, vec(exports))...)
	}

	if len(m.Funcs) > 0 {
		codes := make([][]byte, 0, len(m.Funcs))
		for _, fn := range m.Funcs {
			body := []byte{0x00} // no locals
			body = append(body, fn.Body...)
			body = append(body, opEnd)
			codes = append(codes, append(uleb(uint32(len(body))), body...))
		}
		out = append(out, section(10, vec(codes))...)
	}

	if len(m.Data) > 0 {
		segments := make([][]byte, 0, len(m.Data))
		for _, d := range m.Data {
			seg := append([]byte{0x00}, I32Const(d.Offset)...)
			seg = append(seg, opEnd)
			seg = append(seg, uleb(uint32(len(d.Bytes)))...)
			segments = append(segments, append(seg, d.Bytes...))
		}
		out = append(out, section(11, vec(segments))...)
	}

	return out
}

// I32Const pushes v.
func I32Const(v int32) []byte {
	return append([]byte{opI32Const}, sleb(int64(v))...)
}

// I64Const pushes v.
func I64Const(v int64) []byte {
	return append([]byte{opI64Const}, sleb(v)...)
}

// PackPtrLen packs a guest pointer and length the way host functions expect.
func PackPtrLen(ptr, length uint32) int64 {
	return int64(uint64(ptr)<<32 | uint64(length))
}

// Call calls the function at index idx.
func Call(idx uint32) []byte {
	return append([]byte{opCall}, uleb(idx)...)
}

// I32Load loads an i32 from the address on the stack plus offset.
func I32Load(offset uint32) []byte {
	return append([]byte{opI32Load, 0x02}, uleb(offset)...)
}

// Drop discards the top of the stack.
func Drop() []byte {
	return []byte{opDrop}
}

// Unreachable traps.
func Unreachable() []byte {
	return []byte{opUnreachable}
}

// Seq concatenates instruction sequences.
func Seq(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint32(len(results)))...)
	out = append(out, results...)
	return out
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func vec(items [][]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func encName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}
