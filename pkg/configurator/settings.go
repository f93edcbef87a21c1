package configurator

import (
	"errors"
	"strings"

	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/paths"
)

// Preference keys understood by LoadSettings and SaveSettings.
const (
	KeyLaunchApplication   = "launchApp"
	KeyActiveConfiguration = "activeProfile"
	KeyCustomPaths         = "customPaths"
	KeyOverrideActive      = "overrideActive"
	KeyApplyOnlyToList     = "applyOnlyToList"
	KeyKeepActiveOnExit    = "keepActiveOnExit"
	KeyFirstRun            = "firstRun"
	// KeyPathPrefix prefixes one key per path role, e.g. paths.configuration-store.
	KeyPathPrefix = "paths."
)

// SettingsStore persists preferences between sessions.
type SettingsStore interface {
	GetString(key string) string
	GetBool(key string) bool
	GetStringSlice(key string) []string
	Set(key string, value any)
	Save() error
	Path() string
}

// Preferences are the session settings kept by the facade.
type Preferences struct {
	LaunchApplication   string
	ActiveConfiguration string
	CustomPaths         []string
	OverrideActive      bool
	ApplyOnlyToList     bool
	KeepActiveOnExit    bool
	FirstRun            bool
}

// DefaultPreferences returns the settings of a fresh installation.
func DefaultPreferences() Preferences {
	return Preferences{KeepActiveOnExit: true, FirstRun: true}
}

func (p Preferences) clone() Preferences {
	p.CustomPaths = append([]string(nil), p.CustomPaths...)
	return p
}

// PathKey returns the preference key storing role.
func PathKey(role paths.Role) string {
	return KeyPathPrefix + role.String()
}

// LoadSettings reads the preferences, applies them, scans for layers and loads
// the configuration store. On first run the built-in configurations are
// installed. An override marked active is rewritten when the activation
// record is missing or names another configuration.
func (c *Configurator) LoadSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track(phaseLoad, map[string]string{"step": "settings"}, c.loadSettingsLocked)
}

func (c *Configurator) loadSettingsLocked() error {
	if c.settings != nil {
		c.prefs = Preferences{
			LaunchApplication:   c.settings.GetString(KeyLaunchApplication),
			ActiveConfiguration: c.settings.GetString(KeyActiveConfiguration),
			CustomPaths:         c.settings.GetStringSlice(KeyCustomPaths),
			OverrideActive:      c.settings.GetBool(KeyOverrideActive),
			ApplyOnlyToList:     c.settings.GetBool(KeyApplyOnlyToList),
			KeepActiveOnExit:    c.settings.GetBool(KeyKeepActiveOnExit),
			FirstRun:            c.settings.GetBool(KeyFirstRun),
		}
		for _, role := range paths.Roles() {
			if value := strings.TrimSpace(c.settings.GetString(PathKey(role))); value != "" {
				c.paths.SetPath(role, value)
			}
		}
	}

	c.scanner.SetCustomPaths(c.prefs.CustomPaths)
	c.discoverLocked()

	if c.prefs.FirstRun {
		if _, err := c.catalog.InstallDefaults(); err != nil {
			c.diagnose("install built-in configurations", map[string]string{"store": c.catalog.StoreDir()}, err)
		} else {
			c.prefs.FirstRun = false
		}
	}
	c.loadConfigurationsLocked()

	c.active = nil
	if name := c.prefs.ActiveConfiguration; name != "" {
		c.active = c.catalog.FindConfiguration(name)
	}
	if c.prefs.OverrideActive {
		if c.active == nil {
			c.prefs.OverrideActive = false
			return c.deactivateLocked()
		}
		record, err := c.activator.Status()
		if err == nil && record != nil && record.Configuration == c.active.Name {
			return nil
		}
		return c.activateLocked(c.active)
	}
	return nil
}

// SaveSettings writes the preferences and every explicitly set path role.
func (c *Configurator) SaveSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track(phaseSave, map[string]string{"step": "settings"}, c.saveSettingsLocked)
}

func (c *Configurator) saveSettingsLocked() error {
	if c.settings == nil {
		return nil
	}
	c.settings.Set(KeyLaunchApplication, c.prefs.LaunchApplication)
	c.settings.Set(KeyActiveConfiguration, c.prefs.ActiveConfiguration)
	c.settings.Set(KeyCustomPaths, append([]string{}, c.prefs.CustomPaths...))
	c.settings.Set(KeyOverrideActive, c.prefs.OverrideActive)
	c.settings.Set(KeyApplyOnlyToList, c.prefs.ApplyOnlyToList)
	c.settings.Set(KeyKeepActiveOnExit, c.prefs.KeepActiveOnExit)
	c.settings.Set(KeyFirstRun, c.prefs.FirstRun)
	for _, role := range paths.Roles() {
		value := ""
		if c.paths.IsSet(role) {
			value = c.paths.GetPath(role)
		}
		c.settings.Set(PathKey(role), value)
	}
	if err := c.settings.Save(); err != nil {
		var perr *configuration.PersistenceError
		if errors.As(err, &perr) {
			return err
		}
		return &configuration.PersistenceError{Op: "save settings", Path: c.settings.Path(), Err: err}
	}
	return nil
}

// ResetToDefaultSettings deactivates any override, restores the default
// preferences and path roles, rescans and saves.
func (c *Configurator) ResetToDefaultSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track(phaseSave, map[string]string{"step": "reset"}, func() error {
		c.pushed = nil
		if err := c.deactivateLocked(); err != nil {
			return err
		}
		c.active = nil
		c.prefs = DefaultPreferences()
		c.paths.Clear()
		for role, value := range c.defaultPaths {
			c.paths.SetPath(role, value)
		}
		c.scanner.SetCustomPaths(nil)
		c.discoverLocked()
		c.loadConfigurationsLocked()
		return c.saveSettingsLocked()
	})
}

// Preferences returns a copy of the session settings.
func (c *Configurator) Preferences() Preferences {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs.clone()
}

// SetApplyOnlyToList limits future activations to the listed applications.
// An active override is rewritten.
func (c *Configurator) SetApplyOnlyToList(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs.ApplyOnlyToList = enabled
	return c.refreshLocked()
}

// SetKeepActiveOnExit controls whether Close leaves the override in place.
func (c *Configurator) SetKeepActiveOnExit(keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs.KeepActiveOnExit = keep
}

// SetCustomPaths replaces the user-added layer locations and rescans.
func (c *Configurator) SetCustomPaths(custom []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefs.CustomPaths = append([]string(nil), custom...)
	c.scanner.SetCustomPaths(c.prefs.CustomPaths)
	c.discoverLocked()
}

// Path returns the directory currently resolved for role.
func (c *Configurator) Path(role paths.Role) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths.GetPath(role)
}

// FullPath returns the file path for role, see paths.Manager.GetFullPath.
func (c *Configurator) FullPath(role paths.Role, baseName ...string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths.GetFullPath(role, baseName...)
}

// SetPath overrides the directory for role. The configuration store is
// reloaded when it moves.
func (c *Configurator) SetPath(role paths.Role, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths.SetPath(role, value)
	if role == paths.RoleConfigurationStore {
		c.loadConfigurationsLocked()
	}
}
