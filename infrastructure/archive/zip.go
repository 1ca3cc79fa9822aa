package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/ports"
)

// WasmExtension marks bundled WebAssembly modules inside an archive.
const WasmExtension = ".wasm"

// ZipSource opens module archives stored as zip files.
type ZipSource struct{}

// NewZipSource creates a ZipSource.
func NewZipSource() ports.ArchiveSource {
	return ZipSource{}
}

// Open implements ports.ArchiveSource.
func (ZipSource) Open(p string) (ports.ArchiveFS, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// ReadManifest returns the raw manifest bytes. found is false when the
// archive carries no manifest at all.
func ReadManifest(fsys fs.FS) (data []byte, found bool, err error) {
	data, err = fs.ReadFile(fsys, entities.ManifestFileName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", entities.ManifestFileName, err)
	}
	return data, true, nil
}

// BundledModules indexes every WASM module in the archive by its import
// name, the file base name without extension. Two files claiming the same
// name make the archive ambiguous and are rejected.
func BundledModules(fsys fs.FS) (map[string]string, error) {
	modules := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, WasmExtension) {
			return nil
		}
		name := strings.TrimSuffix(path.Base(p), WasmExtension)
		if prev, ok := modules[name]; ok {
			return fmt.Errorf("module %q bundled twice: %s and %s", name, prev, p)
		}
		modules[name] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return modules, nil
}

// SortedNames returns the keys of a bundle index in lexical order.
func SortedNames(modules map[string]string) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
