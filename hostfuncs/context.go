package hostfuncs

import (
	"context"
)

// ModuleIdentity describes the module a host call originates from.
type ModuleIdentity struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	ArchivePath string `json:"archive_path"`
	Port        int    `json:"port"`
}

type identityKey struct{}

// WithModuleIdentity attaches the calling module's identity to ctx. The
// launcher sets it before invoking an entry point, so every host call made
// while the module runs sees it.
func WithModuleIdentity(ctx context.Context, id ModuleIdentity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// ModuleIdentityFrom returns the identity attached by WithModuleIdentity.
func ModuleIdentityFrom(ctx context.Context) (ModuleIdentity, bool) {
	id, ok := ctx.Value(identityKey{}).(ModuleIdentity)
	return id, ok
}

// HostContext wraps a context.Context with the name of the invoked host
// function, for middleware.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string
}

type hostContext struct {
	context.Context
	funcName string
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

// HostContextFrom returns ctx as a HostContext, wrapping it if needed.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return &hostContext{Context: ctx, funcName: funcName}
}
