package wazero

import (
	"context"

	"github.com/reglet-dev/reglet-launcher/hostfuncs"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName names the module behind a host call: the launched module's
// name when ctx carries its identity, otherwise the wazero module name.
func ModuleName(ctx context.Context, mod api.Module) string {
	if id, ok := hostfuncs.ModuleIdentityFrom(ctx); ok && id.Name != "" {
		return id.Name
	}
	if mod == nil {
		return ""
	}
	return mod.Name()
}
