package configurator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/layer"
	"github.com/dobrovols/vkconfig/pkg/override"
	"github.com/dobrovols/vkconfig/pkg/state"
)

// Configurations returns the loaded configurations sorted by name.
func (c *Configurator) Configurations() []*configuration.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Configurations()
}

// FindConfiguration returns the configuration called name, or nil.
func (c *Configurator) FindConfiguration(name string) *configuration.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.FindConfiguration(name)
}

// CreateEmptyConfiguration returns an unsaved configuration with a fresh name.
func (c *Configurator) CreateEmptyConfiguration() *configuration.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.CreateEmptyConfiguration()
}

// CreateConfigurationFromLayers returns an unsaved configuration enabling
// the named layers with their default settings, in the given order.
func (c *Configurator) CreateConfigurationFromLayers(name string, layerNames []string) (*configuration.Configuration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	manifests := make([]layer.Manifest, 0, len(layerNames))
	for _, layerName := range layerNames {
		manifest, ok := c.layers.FindLayerNamed(layerName, "")
		if !ok {
			return nil, fmt.Errorf("layer %q is not installed", layerName)
		}
		manifests = append(manifests, manifest)
	}
	return configuration.NewFromLayers(name, manifests, c.layers.Defaults), nil
}

// LoadAllConfigurations reloads the store. Descriptors that fail to load are
// returned and skipped.
func (c *Configurator) LoadAllConfigurations() ([]*configuration.Configuration, []*configuration.LoadError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadConfigurationsLocked()
	return c.catalog.Configurations(), append([]*configuration.LoadError(nil), c.loadErrors...)
}

// LoadErrors returns the failures of the last store reload.
func (c *Configurator) LoadErrors() []*configuration.LoadError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*configuration.LoadError(nil), c.loadErrors...)
}

func (c *Configurator) loadConfigurationsLocked() {
	_ = c.track(phaseLoad, map[string]string{"store": c.catalog.StoreDir()}, func() error {
		_, c.loadErrors = c.catalog.LoadAllConfigurations()
		return nil
	})
	for _, failure := range c.loadErrors {
		c.diagnose("configuration skipped", map[string]string{"path": failure.Path}, failure.Err)
	}
	if c.active != nil {
		if reloaded := c.catalog.FindConfiguration(c.active.Name); reloaded != nil {
			c.active = reloaded
		}
	}
}

// SaveConfiguration stores cfg. An active configuration of the same name is
// rewritten to the override.
func (c *Configurator) SaveConfiguration(cfg *configuration.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.track(phaseSave, map[string]string{"configuration": nameOf(cfg)}, func() error {
		return c.catalog.SaveConfiguration(cfg)
	})
	if err != nil {
		return err
	}
	if c.active != nil && c.active.Name == cfg.Name {
		c.active = cfg
		return c.refreshLocked()
	}
	return nil
}

// ImportConfiguration copies a descriptor into the store.
func (c *Configurator) ImportConfiguration(source string) (*configuration.Configuration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cfg *configuration.Configuration
	err := c.track(phaseLoad, map[string]string{"import": source}, func() error {
		var err error
		cfg, err = c.catalog.ImportConfiguration(source)
		return err
	})
	return cfg, err
}

// ExportConfiguration writes the stored descriptor called name to dest and
// returns the written path.
func (c *Configurator) ExportConfiguration(name, dest string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.catalog.FindConfiguration(name)
	if cfg == nil || cfg.Path == "" {
		return "", fmt.Errorf("%w: %q", configuration.ErrNotFound, name)
	}
	var written string
	err := c.track(phaseSave, map[string]string{"export": name}, func() error {
		var err error
		written, err = c.catalog.ExportConfiguration(cfg.Path, dest)
		return err
	})
	return written, err
}

// DeleteConfiguration removes a configuration. Deleting the active one
// deactivates the override first.
func (c *Configurator) DeleteConfiguration(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.Name == name {
		if err := c.setActiveLocked(nil); err != nil {
			return err
		}
	}
	return c.track(phaseSave, map[string]string{"delete": name}, func() error {
		return c.catalog.DeleteConfiguration(name)
	})
}

// RenameConfiguration renames a stored configuration, following it if active.
func (c *Configurator) RenameConfiguration(oldName, newName string) (*configuration.Configuration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var renamed *configuration.Configuration
	err := c.track(phaseSave, map[string]string{"rename": oldName}, func() error {
		var err error
		renamed, err = c.catalog.RenameConfiguration(oldName, newName)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c.active != nil && c.active.Name == oldName {
		c.active = renamed
		c.prefs.ActiveConfiguration = renamed.Name
		return renamed, c.refreshLocked()
	}
	return renamed, nil
}

// SetActiveConfiguration writes the override for cfg. A nil cfg removes the
// override.
func (c *Configurator) SetActiveConfiguration(cfg *configuration.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setActiveLocked(cfg)
}

func (c *Configurator) setActiveLocked(cfg *configuration.Configuration) error {
	if cfg == nil {
		if err := c.deactivateLocked(); err != nil {
			return err
		}
		c.active = nil
		c.prefs.OverrideActive = false
		return nil
	}
	if err := c.activateLocked(cfg); err != nil {
		return err
	}
	c.active = cfg
	c.prefs.ActiveConfiguration = cfg.Name
	c.prefs.OverrideActive = true
	return nil
}

// ActiveConfiguration returns the configuration the override was written
// for, or nil when no override is active.
func (c *Configurator) ActiveConfiguration() *configuration.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.prefs.OverrideActive {
		return nil
	}
	return c.active
}

// ActivationStatus returns the persisted activation record, or nil.
func (c *Configurator) ActivationStatus() (*state.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activator.Status()
}

// RefreshConfiguration rewrites the override of the active configuration,
// picking up edits and rescanned layers.
func (c *Configurator) RefreshConfiguration() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked()
}

func (c *Configurator) refreshLocked() error {
	if c.active == nil || !c.prefs.OverrideActive {
		return nil
	}
	return c.activateLocked(c.active)
}

// PushConfiguration activates cfg temporarily. Only one configuration can be
// pushed at a time; PopConfiguration restores what was active before.
func (c *Configurator) PushConfiguration(cfg *configuration.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushLocked(cfg)
}

func (c *Configurator) pushLocked(cfg *configuration.Configuration) error {
	if c.pushed != nil {
		return &NestedPushError{Pushed: c.pushed.name}
	}
	if cfg == nil {
		return fmt.Errorf("push configuration: %w", configuration.ErrNotFound)
	}
	saved := &pushedState{name: cfg.Name, previous: c.active, overrideActive: c.prefs.OverrideActive}
	previousName := c.prefs.ActiveConfiguration
	if err := c.setActiveLocked(cfg); err != nil {
		return err
	}
	// The pushed configuration is not remembered across sessions.
	c.prefs.ActiveConfiguration = previousName
	c.pushed = saved
	return nil
}

// PopConfiguration restores the configuration active before the push.
func (c *Configurator) PopConfiguration() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

func (c *Configurator) popLocked() error {
	if c.pushed == nil {
		return ErrNothingPushed
	}
	saved := c.pushed
	var err error
	if saved.overrideActive && saved.previous != nil {
		err = c.setActiveLocked(saved.previous)
	} else {
		err = c.setActiveLocked(nil)
		c.active = saved.previous
	}
	if err != nil {
		return err
	}
	c.pushed = nil
	return nil
}

func (c *Configurator) activateLocked(cfg *configuration.Configuration) error {
	cfg.Resolve(c.layers)
	scope := override.Scope{ApplyOnlyToList: c.prefs.ApplyOnlyToList}
	if scope.ApplyOnlyToList {
		for _, app := range c.applicationsLocked() {
			if app.OverrideEnabled {
				scope.Applications = append(scope.Applications, app.Executable)
			}
		}
	}
	for _, name := range cfg.Unusable() {
		c.diagnose("layer not installed", map[string]string{"configuration": cfg.Name, "layer": name}, nil)
	}

	metadata := map[string]string{"configuration": cfg.Name}
	err := c.track(phaseActivate, metadata, func() error {
		_, err := c.activator.Activate(cfg, scope)
		return err
	})
	c.countActivation("activate", err)
	if err != nil {
		c.logf(severityError, "override activation failed", metadata, err)
		return err
	}
	c.logf(severityInfo, "override activated", metadata, nil)
	return nil
}

func (c *Configurator) deactivateLocked() error {
	err := c.track(phaseDeactivate, nil, c.activator.Deactivate)
	c.countActivation("deactivate", err)
	if err != nil {
		c.logf(severityError, "override deactivation failed", nil, err)
		return err
	}
	return nil
}

func (c *Configurator) countActivation(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.activations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func nameOf(cfg *configuration.Configuration) string {
	if cfg == nil {
		return ""
	}
	return cfg.Name
}
