package hostfuncs

import (
	"context"
	"fmt"
	"sort"
)

// HandlerRegistry is an immutable collection of named host functions.
// Once built by NewRegistry it is safe for concurrent use without locks,
// which lets every module's isolated runtime share one registry.
type HandlerRegistry struct {
	handlers map[string]ByteHandler
	names    []string
}

type registryBuilder struct {
	handlers   map[string]ByteHandler
	middleware []Middleware
	errors     []error
}

// NewRegistry builds a HandlerRegistry. Registering a name twice is an
// error.
//
// Example usage:
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(LauncherBundle()),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{handlers: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	reg := &HandlerRegistry{
		handlers: make(map[string]ByteHandler, len(b.handlers)),
		names:    make([]string, 0, len(b.handlers)),
	}
	for name, handler := range b.handlers {
		wrapped := handler
		for i := len(b.middleware) - 1; i >= 0; i-- {
			wrapped = b.middleware[i](wrapped)
		}
		reg.handlers[name] = wrapped
		reg.names = append(reg.names, name)
	}
	sort.Strings(reg.names)
	return reg, nil
}

// Invoke dispatches a host function call by name. Unknown names produce a
// NOT_FOUND ErrorResponse rather than a Go error.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return NewNotFoundError(name).ToJSON(), nil
	}
	return handler(HostContextFrom(ctx, name), payload)
}

// Has reports whether a handler with the given name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the sorted handler names.
func (r *HandlerRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (b *registryBuilder) addHandler(name string, handler ByteHandler) {
	switch {
	case name == "":
		b.errors = append(b.errors, fmt.Errorf("handler name cannot be empty"))
	case b.handlers[name] != nil:
		b.errors = append(b.errors, fmt.Errorf("duplicate handler name: %q", name))
	default:
		b.handlers[name] = handler
	}
}

// WithByteHandler registers a raw ByteHandler.
func WithByteHandler(name string, handler ByteHandler) RegistryOption {
	return func(b *registryBuilder) {
		b.addHandler(name, handler)
	}
}

// WithHandler registers a typed host function with JSON encoding.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		b.addHandler(name, NewJSONHandler(fn))
	}
}

// WithBundle registers every handler of a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			b.addHandler(name, handler)
		}
	}
}

// WithMiddleware adds middleware applied to every handler.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
