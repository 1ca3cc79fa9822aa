// Package host loads module archives into isolated wazero runtimes and
// invokes their entry points.
//
// Every archive gets its own IsolatedContext: a fresh wazero.Runtime and an
// ordered search path used to satisfy the entry module's imports. The
// search path is consulted archive first, then the manifest's declared
// dependencies, then host modules, so an archive can shadow anything the
// host provides. Only compiled code is shared between contexts, through
// the Loader's compilation cache.
package host
