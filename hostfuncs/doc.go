// Package hostfuncs provides pure Go implementations of the host functions
// the launcher exposes to every module. These implementations have no WASM
// runtime dependencies; infrastructure/wazero binds them into each module's
// isolated runtime.
package hostfuncs
