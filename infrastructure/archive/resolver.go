// Package archive resolves module names to archive paths and reads the
// contents of module archives.
package archive

import (
	"path/filepath"
	"strings"
)

// Extension is the canonical module archive extension.
const Extension = ".zip"

// Resolve maps a module name to its archive path under moduleHome.
// Extension is appended when name lacks it. No existence check is made;
// a missing archive surfaces when the loader opens it.
func Resolve(moduleHome, name string) string {
	if !strings.HasSuffix(name, Extension) {
		name += Extension
	}
	return filepath.Join(moduleHome, name)
}

// ModuleName strips the directory and the archive extension from path.
func ModuleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), Extension)
}
