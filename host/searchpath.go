package host

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/reglet-dev/reglet-launcher/infrastructure/archive"
)

// Layer is one tier of a search path.
type Layer string

// Search path layers, in lookup order.
const (
	LayerArchive      Layer = "archive"
	LayerDependencies Layer = "dependencies"
	LayerHost         Layer = "host"
)

// Source locates one module on a search path.
type Source struct {
	load func() ([]byte, error)
	host HostModuleFunc

	Layer Layer
	Name  string

	// Origin is the archive entry, library file or "host".
	Origin string
}

// IsHost reports whether the module is implemented by the host.
func (s Source) IsHost() bool {
	return s.host != nil
}

// SearchPath resolves import names parent-last: modules bundled in the
// archive win over declared dependencies, which win over host modules.
// It is immutable once built.
type SearchPath struct {
	layers map[Layer]map[string]Source
}

var lookupOrder = []Layer{LayerArchive, LayerDependencies, LayerHost}

func newSearchPath() *SearchPath {
	sp := &SearchPath{layers: make(map[Layer]map[string]Source, len(lookupOrder))}
	for _, layer := range lookupOrder {
		sp.layers[layer] = make(map[string]Source)
	}
	return sp
}

func (sp *SearchPath) addBundled(name, entry string, code []byte) {
	sp.layers[LayerArchive][name] = Source{
		Layer:  LayerArchive,
		Name:   name,
		Origin: entry,
		load:   func() ([]byte, error) { return code, nil },
	}
}

func (sp *SearchPath) addDependency(name, libraryDir string) {
	p := filepath.Join(libraryDir, name+archive.WasmExtension)
	sp.layers[LayerDependencies][name] = Source{
		Layer:  LayerDependencies,
		Name:   name,
		Origin: p,
		load: func() ([]byte, error) {
			code, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("read dependency %q: %w", name, err)
			}
			return code, nil
		},
	}
}

func (sp *SearchPath) addHost(name string, fn HostModuleFunc) {
	sp.layers[LayerHost][name] = Source{
		Layer:  LayerHost,
		Name:   name,
		Origin: string(LayerHost),
		host:   fn,
	}
}

// Lookup returns the first source providing name.
func (sp *SearchPath) Lookup(name string) (Source, bool) {
	for _, layer := range lookupOrder {
		if src, ok := sp.layers[layer][name]; ok {
			return src, true
		}
	}
	return Source{}, false
}

// Names lists the module names a layer provides, sorted.
func (sp *SearchPath) Names(layer Layer) []string {
	names := make([]string, 0, len(sp.layers[layer]))
	for name := range sp.layers[layer] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
