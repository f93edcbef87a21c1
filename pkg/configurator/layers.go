package configurator

import (
	"context"
	"fmt"

	"github.com/dobrovols/vkconfig/internal/validation"
	"github.com/dobrovols/vkconfig/pkg/discovery"
	"github.com/dobrovols/vkconfig/pkg/layer"
	"github.com/dobrovols/vkconfig/pkg/paths"
)

// FindAllInstalledLayers rescans every layer location and returns the result.
func (c *Configurator) FindAllInstalledLayers() discovery.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoverLocked()
	return c.layers
}

func (c *Configurator) discoverLocked() {
	_ = c.track(phaseDiscovery, nil, func() error {
		c.layers = c.scanner.FindAllInstalledLayers()
		return nil
	})
	for _, w := range c.layers.Warnings {
		c.diagnose("layer manifest skipped", map[string]string{"path": w.Path}, w.Err)
	}
	c.catalog.SetLayerIndex(c.layers)
	if c.active != nil {
		c.active.Resolve(c.layers)
	}
}

// AvailableLayers returns the layers of the last scan, in precedence order.
func (c *Configurator) AvailableLayers() []layer.Manifest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]layer.Manifest(nil), c.layers.Layers...)
}

// FindLayerNamed looks a layer up in the last scan. A non-empty location
// restricts the match to manifests under that path.
func (c *Configurator) FindLayerNamed(name, location string) (layer.Manifest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers.FindLayerNamed(name, location)
}

// HasLayers reports whether the last scan found any layer.
func (c *Configurator) HasLayers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layers.Layers) > 0
}

// Warnings returns the problems of the last scan.
func (c *Configurator) Warnings() []discovery.Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]discovery.Warning(nil), c.layers.Warnings...)
}

// LayerDefaults returns the default settings of a discovered layer.
func (c *Configurator) LayerDefaults(name string) (layer.Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layers.Defaults == nil {
		return nil, false
	}
	return c.layers.Defaults.Lookup(name)
}

// CheckVulkanSetup inspects the loader and the override directories and
// returns a human-readable report.
func (c *Configurator) CheckVulkanSetup() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := validation.CheckSetup(validation.SetupConfig{
		LayerCount:      len(c.layers.Layers),
		ApplyOnlyToList: c.prefs.ApplyOnlyToList,
		ArtifactDirs: []string{
			c.paths.GetPath(paths.RoleOverrideSettings),
			c.paths.GetPath(paths.RoleOverrideJSON),
		},
	}, c.inspector)
	for _, issue := range result.Issues {
		c.diagnose("setup check", map[string]string{"issue": issue}, nil)
	}
	return result.Report()
}

// Watch rescans whenever a manifest in a watched layer directory changes and
// calls onRescan with the new result. It blocks until ctx is done.
func (c *Configurator) Watch(ctx context.Context, onRescan func(discovery.Result)) error {
	c.mu.Lock()
	dirs := c.scanner.WatchDirectories()
	c.mu.Unlock()

	watcher, err := discovery.NewWatcher(dirs, func() {
		result := c.FindAllInstalledLayers()
		if onRescan != nil {
			onRescan(result)
		}
	}, func(err error) {
		c.diagnose("layer watcher", nil, err)
	}, discovery.DefaultDebounce)
	if err != nil {
		return fmt.Errorf("watch layer directories: %w", err)
	}
	return watcher.Run(ctx)
}
