// Package platform abstracts the host state vkconfig reads and writes: where
// layer manifests are registered and how override locations are published to
// the Vulkan loader.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dobrovols/vkconfig/pkg/layer"
	"github.com/dobrovols/vkconfig/pkg/state"
)

// Location is a place the loader searches for layer manifests.
type Location struct {
	// Path is a directory of manifests, or a single manifest when File is set.
	Path   string
	File   bool
	Type   layer.Type
	Rank   layer.Rank
	Origin string
}

// Publication is a registry value pointing the loader at an override artifact.
type Publication struct {
	Root string
	Key  string
	Name string
}

func (p Publication) String() string {
	return p.Root + `\` + p.Key + `\` + p.Name
}

// System is the capability set the engine needs from the host.
type System interface {
	// LayerLocations lists registered manifest locations, user ranks first.
	LayerLocations() ([]Location, error)
	ReadFile(path string) ([]byte, error)
	// ListManifests returns the *.json files of dir in lexical order.
	ListManifests(dir string) ([]string, error)
	// OverridePublications names the values Activate must publish for the
	// given artifacts. Hosts without a registry return nil.
	OverridePublications(jsonPath, settingsPath string) []Publication
	// Lookup returns the current value behind p, or nil when it is not set.
	Lookup(Publication) (*state.RegistryData, error)
	Publish(Publication) error
	// Restore puts back a value Publish replaced.
	Restore(Publication, state.RegistryData) error
	Withdraw(Publication) error
}

// ErrUnsupported is returned by hosts that cannot publish values.
var ErrUnsupported = errors.New("operation not supported on this platform")

type files struct{}

func (files) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (files) ListManifests(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list manifests in %q: %w", dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// DirectorySystem discovers layers in per-user and system Vulkan data
// directories. Each root holds explicit_layer.d and implicit_layer.d.
type DirectorySystem struct {
	files

	// LayerPath lists explicit manifest directories from VK_LAYER_PATH.
	LayerPath   []string
	UserRoots   []string
	SystemRoots []string
}

var _ System = (*DirectorySystem)(nil)

const (
	explicitDir = "explicit_layer.d"
	implicitDir = "implicit_layer.d"
)

// LayerLocations expands the configured roots into manifest directories.
func (d *DirectorySystem) LayerLocations() ([]Location, error) {
	var out []Location
	for _, dir := range d.LayerPath {
		out = append(out, Location{Path: dir, Type: layer.TypeExplicit, Rank: layer.RankUser, Origin: "VK_LAYER_PATH"})
	}
	out = append(out, expandRoots(d.UserRoots, layer.RankUser)...)
	out = append(out, expandRoots(d.SystemRoots, layer.RankSystem)...)
	return out, nil
}

func expandRoots(roots []string, rank layer.Rank) []Location {
	out := make([]Location, 0, len(roots)*2)
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		explicit := filepath.Join(root, explicitDir)
		implicit := filepath.Join(root, implicitDir)
		out = append(out,
			Location{Path: explicit, Type: layer.TypeExplicit, Rank: rank, Origin: explicit},
			Location{Path: implicit, Type: layer.TypeImplicit, Rank: rank, Origin: implicit},
		)
	}
	return out
}

// OverridePublications returns nil: the loader finds the override artifacts
// through their directories alone.
func (d *DirectorySystem) OverridePublications(string, string) []Publication { return nil }

func (d *DirectorySystem) Lookup(Publication) (*state.RegistryData, error) { return nil, ErrUnsupported }
func (d *DirectorySystem) Publish(Publication) error                      { return ErrUnsupported }
func (d *DirectorySystem) Restore(Publication, state.RegistryData) error  { return ErrUnsupported }
func (d *DirectorySystem) Withdraw(Publication) error                     { return ErrUnsupported }

// DefaultDirectorySystem returns the loader's search layout for Linux and
// macOS hosts, honoring the XDG variables and VK_LAYER_PATH.
func DefaultDirectorySystem(getenv func(string) string, home string) *DirectorySystem {
	if getenv == nil {
		getenv = os.Getenv
	}
	sys := &DirectorySystem{}
	if v := getenv("VK_LAYER_PATH"); v != "" {
		sys.LayerPath = splitList(v)
	}

	configHome := getenv("XDG_CONFIG_HOME")
	if configHome == "" && home != "" {
		configHome = filepath.Join(home, ".config")
	}
	dataHome := getenv("XDG_DATA_HOME")
	if dataHome == "" && home != "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	for _, base := range []string{configHome, dataHome} {
		if base != "" {
			sys.UserRoots = append(sys.UserRoots, filepath.Join(base, "vulkan"))
		}
	}

	configDirs := splitList(getenv("XDG_CONFIG_DIRS"))
	if len(configDirs) == 0 {
		configDirs = []string{"/etc/xdg"}
	}
	dataDirs := splitList(getenv("XDG_DATA_DIRS"))
	if len(dataDirs) == 0 {
		dataDirs = []string{"/usr/local/share", "/usr/share"}
	}
	system := append([]string{}, configDirs...)
	system = append(system, "/usr/local/etc", "/etc")
	system = append(system, dataDirs...)
	seen := map[string]bool{}
	for _, base := range system {
		root := filepath.Join(base, "vulkan")
		if seen[root] {
			continue
		}
		seen[root] = true
		sys.SystemRoots = append(sys.SystemRoots, root)
	}
	return sys
}

func splitList(value string) []string {
	var out []string
	for _, part := range filepath.SplitList(value) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
