package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/dobrovols/vkconfig/pkg/configurator"
	"github.com/dobrovols/vkconfig/pkg/paths"
	"github.com/dobrovols/vkconfig/pkg/state"
)

// EnvPrefix prefixes environment overrides, e.g. VKCONFIG_APPLYONLYTOLIST or
// VKCONFIG_PATHS_CONFIGURATION_STORE.
const EnvPrefix = "VKCONFIG"

const preferencesType = "toml"

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return strings.ToUpper(EnvPrefix + "_" + envKeyReplacer.Replace(key))
}

// Preferences is the TOML preferences file. Reads see defaults < file <
// environment; Save writes only the file and explicitly set values, so
// environment overrides never leak into the file.
type Preferences struct {
	path   string
	stored *viper.Viper
	view   *viper.Viper
}

var _ configurator.SettingsStore = (*Preferences)(nil)

// LoadPreferences reads the preferences at path. A missing file yields the
// defaults and is created on the first Save.
func LoadPreferences(path string) (*Preferences, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPreferencesLocation
	}
	p := &Preferences{path: path, stored: viper.New(), view: viper.New()}
	p.stored.SetConfigType(preferencesType)
	p.view.SetConfigType(preferencesType)
	setDefaults(p.view)
	p.view.SetEnvPrefix(EnvPrefix)
	p.view.SetEnvKeyReplacer(envKeyReplacer)
	p.view.AutomaticEnv()

	if err := mergePreferencesFile(p.stored, path); err != nil {
		return nil, err
	}
	if err := p.view.MergeConfigMap(p.stored.AllSettings()); err != nil {
		return nil, fmt.Errorf("merge preferences %s: %w", path, err)
	}
	return p, nil
}

func setDefaults(v *viper.Viper) {
	def := configurator.DefaultPreferences()

	v.SetDefault(configurator.KeyLaunchApplication, def.LaunchApplication)
	v.SetDefault(configurator.KeyActiveConfiguration, def.ActiveConfiguration)
	v.SetDefault(configurator.KeyCustomPaths, []string{})
	v.SetDefault(configurator.KeyOverrideActive, def.OverrideActive)
	v.SetDefault(configurator.KeyApplyOnlyToList, def.ApplyOnlyToList)
	v.SetDefault(configurator.KeyKeepActiveOnExit, def.KeepActiveOnExit)
	v.SetDefault(configurator.KeyFirstRun, def.FirstRun)
	for _, role := range paths.Roles() {
		v.SetDefault(configurator.PathKey(role), "")
	}
}

func mergePreferencesFile(v *viper.Viper, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat preferences %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("preferences path %s is a directory", path)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge preferences %s: %w", path, err)
	}
	return nil
}

// Path returns the preferences file location.
func (p *Preferences) Path() string { return p.path }

func (p *Preferences) GetString(key string) string { return p.view.GetString(key) }

func (p *Preferences) GetBool(key string) bool { return p.view.GetBool(key) }

func (p *Preferences) GetStringSlice(key string) []string { return p.view.GetStringSlice(key) }

// Set records value for the next Save. While an environment variable
// overrides key, a value equal to the one read from it is not recorded, so
// the override never reaches the file. The environment keeps precedence for
// reads either way.
func (p *Preferences) Set(key string, value any) {
	if _, bound := os.LookupEnv(EnvName(key)); bound && p.readsAs(key, value) {
		return
	}
	p.stored.Set(key, value)
	_ = p.view.MergeConfigMap(p.stored.AllSettings())
}

func (p *Preferences) readsAs(key string, value any) bool {
	switch v := value.(type) {
	case bool:
		return p.view.GetBool(key) == v
	case string:
		return p.view.GetString(key) == v
	case []string:
		return slices.Equal(p.view.GetStringSlice(key), v)
	}
	return false
}

// Save writes the stored values. The file is replaced atomically so a failed
// write leaves the previous preferences intact.
func (p *Preferences) Save() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %w", state.ErrWriteFailed, err)
	}
	// The temp name keeps a .toml extension; viper picks the encoder by it.
	tmp := filepath.Join(dir, "."+filepath.Base(p.path)+".tmp."+preferencesType)
	if err := p.stored.WriteConfigAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", state.ErrWriteFailed, err)
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", state.ErrWriteFailed, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", state.ErrWriteFailed, err)
	}
	return nil
}
