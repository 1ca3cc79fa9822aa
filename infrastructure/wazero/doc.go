// Package wazero exposes the launcher's host functions to modules running
// on the wazero runtime.
//
// Every handler in a hostfuncs.HandlerRegistry is exported from a single
// host module (default "reglet_launcher"). Requests and responses travel
// through guest linear memory as a packed i64: the upper 32 bits hold the
// pointer and the lower 32 bits the length. Responses are written into
// memory obtained from the guest's "allocate" export.
//
// log_message is a custom handler. It takes a packed request and returns
// nothing, relaying the module's record to the host logger.
package wazero
