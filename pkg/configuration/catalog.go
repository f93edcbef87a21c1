package configuration

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	istate "github.com/dobrovols/vkconfig/internal/state"
	"github.com/dobrovols/vkconfig/pkg/paths"
	"github.com/dobrovols/vkconfig/pkg/state"
)

// NewConfigurationName is the base of generated configuration names.
const NewConfigurationName = "New Configuration"

//go:embed builtin/*.json
var builtinFS embed.FS

// Catalog is the set of configurations stored in the configuration store
// directory.
type Catalog struct {
	paths   *paths.Manager
	index   LayerIndex
	configs map[string]*Configuration
}

// NewCatalog constructs a catalog reading and writing under the
// CONFIGURATION_STORE role of resolver.
func NewCatalog(resolver *paths.Manager, index LayerIndex) *Catalog {
	if resolver == nil {
		resolver = paths.New("")
	}
	return &Catalog{paths: resolver, index: index, configs: map[string]*Configuration{}}
}

// StoreDir returns the directory descriptors are kept in.
func (c *Catalog) StoreDir() string {
	return c.paths.GetPath(paths.RoleConfigurationStore)
}

// SetLayerIndex replaces the discovery results references resolve against and
// re-resolves every loaded configuration.
func (c *Catalog) SetLayerIndex(index LayerIndex) {
	c.index = index
	for _, cfg := range c.configs {
		cfg.Resolve(index)
	}
}

// Configurations returns the loaded configurations sorted by name.
func (c *Catalog) Configurations() []*Configuration {
	out := make([]*Configuration, 0, len(c.configs))
	for _, cfg := range c.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindConfiguration returns the configuration called name, or nil.
func (c *Catalog) FindConfiguration(name string) *Configuration {
	return c.configs[name]
}

// CreateEmptyConfiguration returns a configuration with a name no other
// configuration uses and no layers. It is not stored until saved.
func (c *Catalog) CreateEmptyConfiguration() *Configuration {
	return &Configuration{Name: c.uniqueName(NewConfigurationName)}
}

func (c *Catalog) uniqueName(base string) string {
	if !c.taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if !c.taken(candidate) {
			return candidate
		}
	}
}

func (c *Catalog) taken(name string) bool {
	if _, ok := c.configs[name]; ok {
		return true
	}
	_, err := os.Stat(c.paths.GetFullPath(paths.RoleConfigurationStore, name))
	return err == nil
}

// LoadConfiguration parses the descriptor at path, resolves its layer
// references and adds it to the catalog. References to layers that are not
// installed are kept but marked unusable.
func (c *Catalog) LoadConfiguration(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg, err := Decode(path, data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg.Resolve(c.index)
	c.configs[cfg.Name] = cfg
	return cfg, nil
}

// LoadAllConfigurations reloads the catalog from the store directory. A
// descriptor that fails to load is reported and skipped.
func (c *Catalog) LoadAllConfigurations() ([]*Configuration, []*LoadError) {
	c.configs = map[string]*Configuration{}
	dir := c.StoreDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, []*LoadError{{Path: dir, Err: err}}
	}

	var failures []*LoadError
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), paths.DescriptorSuffix) {
			continue
		}
		if _, err := c.LoadConfiguration(filepath.Join(dir, entry.Name())); err != nil {
			var loadErr *LoadError
			if errors.As(err, &loadErr) {
				failures = append(failures, loadErr)
			}
		}
	}
	return c.Configurations(), failures
}

// SaveConfiguration writes cfg to the store. The write is atomic: on failure
// the previous descriptor is untouched.
func (c *Catalog) SaveConfiguration(cfg *Configuration) error {
	if cfg == nil {
		return &PersistenceError{Op: "save", Err: ErrNotFound}
	}
	target := c.paths.GetFullPath(paths.RoleConfigurationStore, cfg.Name)
	if istate.InvalidFileName(cfg.Name) {
		return &PersistenceError{Op: "save", Path: target, Err: fmt.Errorf("%w: %q", ErrInvalidName, cfg.Name)}
	}
	data, err := Encode(cfg)
	if err != nil {
		return &PersistenceError{Op: "save", Path: target, Err: err}
	}
	if err := state.WriteFile(target, data, 0o644); err != nil {
		return &PersistenceError{Op: "save", Path: target, Err: err}
	}
	cfg.Path = target
	c.configs[cfg.Name] = cfg
	return nil
}

// ImportConfiguration copies the descriptor at source into the store. A name
// already in use gets a numeric suffix.
func (c *Catalog) ImportConfiguration(source string) (*Configuration, error) {
	source = c.paths.Resolve(paths.RoleImportConfiguration, source)
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, &LoadError{Path: source, Err: err}
	}
	cfg, err := Decode(source, data)
	if err != nil {
		return nil, &LoadError{Path: source, Err: err}
	}
	cfg.Name = c.uniqueName(cfg.Name)
	cfg.Resolve(c.index)
	if err := c.SaveConfiguration(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExportConfiguration copies the descriptor at source to dest and returns the
// written path. An empty dest exports under the EXPORT_CONFIGURATION role
// using the configuration's name; a relative dest is placed in that
// directory.
func (c *Catalog) ExportConfiguration(source, dest string) (string, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return "", &LoadError{Path: source, Err: err}
	}
	cfg, err := Decode(source, data)
	if err != nil {
		return "", &LoadError{Path: source, Err: err}
	}
	switch {
	case strings.TrimSpace(dest) == "":
		dest = c.paths.GetFullPath(paths.RoleExportConfiguration, cfg.Name)
	case !filepath.IsAbs(dest):
		dest = c.paths.GetFullPath(paths.RoleExportConfiguration, dest)
	}
	if err := state.WriteFile(dest, data, 0o644); err != nil {
		return "", &PersistenceError{Op: "export", Path: dest, Err: err}
	}
	return dest, nil
}

// DeleteConfiguration removes name from the catalog and the store.
func (c *Catalog) DeleteConfiguration(name string) error {
	cfg, ok := c.configs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	target := cfg.Path
	if target == "" {
		target = c.paths.GetFullPath(paths.RoleConfigurationStore, name)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &PersistenceError{Op: "delete", Path: target, Err: err}
	}
	delete(c.configs, name)
	return nil
}

// RenameConfiguration stores the configuration under a new name and removes
// the old descriptor.
func (c *Catalog) RenameConfiguration(oldName, newName string) (*Configuration, error) {
	cfg, ok := c.configs[oldName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, oldName)
	}
	if oldName == newName {
		return cfg, nil
	}
	if c.taken(newName) {
		return nil, fmt.Errorf("%w: %q", ErrExists, newName)
	}
	renamed := cfg.Clone()
	renamed.Name = newName
	if err := c.SaveConfiguration(renamed); err != nil {
		return nil, err
	}
	if err := c.DeleteConfiguration(oldName); err != nil {
		return nil, err
	}
	return renamed, nil
}

// InstallDefaults writes the built-in configurations that are missing from
// the store and returns their names.
func (c *Catalog) InstallDefaults() ([]string, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	var installed []string
	for _, entry := range entries {
		name := path.Join("builtin", entry.Name())
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return installed, err
		}
		cfg, err := Decode(entry.Name(), data)
		if err != nil {
			return installed, &LoadError{Path: name, Err: err}
		}
		if c.taken(cfg.Name) {
			continue
		}
		cfg.Resolve(c.index)
		if err := c.SaveConfiguration(cfg); err != nil {
			return installed, err
		}
		installed = append(installed, cfg.Name)
	}
	return installed, nil
}

// BuiltinNames lists the names of the built-in configurations.
func BuiltinNames() []string {
	entries, _ := fs.ReadDir(builtinFS, "builtin")
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", entry.Name()))
		if err != nil {
			continue
		}
		if cfg, err := Decode(entry.Name(), data); err == nil {
			out = append(out, cfg.Name)
		}
	}
	sort.Strings(out)
	return out
}
