// Package testutil provides fixtures for launcher tests: a minimal
// WebAssembly binary encoder and helpers that package modules into
// archives on disk.
package testutil
