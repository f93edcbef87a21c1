// Package paths maps the logical path roles used by vkconfig to normalized
// absolute paths. It performs no filesystem I/O; callers create directories.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Role identifies a logical path used by the engine.
type Role int

const (
	RoleHome Role = iota
	RoleConfigurationStore
	RoleOverrideSettings
	RoleOverrideJSON
	RoleImportConfiguration
	RoleExportConfiguration
	RoleCustomLayers
	RoleLauncherLog

	roleCount
)

const (
	// SettingsFileName is the file the loader reads layer settings from.
	SettingsFileName = "vk_layer_settings.txt"
	// OverrideFileName is the meta-layer manifest enabling the override.
	OverrideFileName = "VkLayer_override.json"
	// DescriptorSuffix is appended to configuration descriptor names.
	DescriptorSuffix = ".json"
)

var roleNames = [roleCount]string{
	RoleHome:                "home",
	RoleConfigurationStore:  "configuration-store",
	RoleOverrideSettings:    "override-settings",
	RoleOverrideJSON:        "override-json",
	RoleImportConfiguration: "import-configuration",
	RoleExportConfiguration: "export-configuration",
	RoleCustomLayers:        "custom-layers",
	RoleLauncherLog:         "launcher-log",
}

func (r Role) String() string {
	if r < 0 || r >= roleCount {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// Roles lists every role in declaration order.
func Roles() []Role {
	out := make([]Role, 0, roleCount)
	for r := RoleHome; r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}

// ParseRole resolves a role from its String form.
func ParseRole(name string) (Role, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for r, n := range roleNames {
		if n == trimmed {
			return Role(r), nil
		}
	}
	return 0, fmt.Errorf("unknown path role %q", name)
}

// Manager stores the configured value of every role.
type Manager struct {
	home   string
	values [roleCount]string
}

// New constructs a Manager whose HOME fallback is home. When home is empty the
// current user's home directory is used, then the temp directory.
func New(home string) *Manager {
	if strings.TrimSpace(home) == "" {
		if dir, err := os.UserHomeDir(); err == nil && dir != "" {
			home = dir
		} else {
			home = os.TempDir()
		}
	}
	return &Manager{home: normalize(home)}
}

// Clear resets all roles to unset.
func (m *Manager) Clear() {
	m.values = [roleCount]string{}
}

// SetPath stores value for role after normalizing separators. Existence is
// not checked.
func (m *Manager) SetPath(role Role, value string) {
	if !valid(role) {
		return
	}
	m.values[role] = normalize(value)
}

// IsSet reports whether role holds an explicit value.
func (m *Manager) IsSet(role Role) bool {
	return valid(role) && m.values[role] != ""
}

// GetPath returns the stored value for role, falling back to the paired
// import/export role and then to HOME.
func (m *Manager) GetPath(role Role) string {
	if !valid(role) {
		return m.home
	}
	if v := m.values[role]; v != "" {
		return v
	}
	switch role {
	case RoleImportConfiguration:
		if v := m.values[RoleExportConfiguration]; v != "" {
			return v
		}
	case RoleExportConfiguration:
		if v := m.values[RoleImportConfiguration]; v != "" {
			return v
		}
	case RoleHome:
		return m.home
	}
	if v := m.values[RoleHome]; v != "" {
		return v
	}
	return m.home
}

// GetFullPath returns GetPath(role) joined with a file name. Artifact roles
// use their canonical file name when baseName is omitted. Descriptor roles
// get the .json suffix appended unless baseName already carries it.
func (m *Manager) GetFullPath(role Role, baseName ...string) string {
	dir := m.GetPath(role)
	name := ""
	if len(baseName) > 0 {
		name = strings.TrimSpace(baseName[0])
	}

	switch role {
	case RoleOverrideSettings:
		if name == "" {
			name = SettingsFileName
		}
	case RoleOverrideJSON:
		if name == "" {
			name = OverrideFileName
		}
	case RoleImportConfiguration, RoleExportConfiguration, RoleConfigurationStore:
		if name != "" && !strings.HasSuffix(name, DescriptorSuffix) {
			name += DescriptorSuffix
		}
	}

	if name == "" {
		return dir
	}
	return filepath.Join(dir, name)
}

// Resolve normalizes value, joining it under GetPath(role) when relative.
func (m *Manager) Resolve(role Role, value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	slashed := filepath.FromSlash(strings.ReplaceAll(trimmed, `\`, "/"))
	if !filepath.IsAbs(slashed) {
		slashed = filepath.Join(m.GetPath(role), slashed)
	}
	return normalize(slashed)
}

func valid(role Role) bool {
	return role >= 0 && role < roleCount
}

// normalize converts both separator styles to the host separator, removes
// trailing separators and makes the result absolute.
func normalize(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	slashed := strings.ReplaceAll(trimmed, `\`, "/")
	cleaned := filepath.Clean(filepath.FromSlash(slashed))
	if !filepath.IsAbs(cleaned) {
		if abs, err := filepath.Abs(cleaned); err == nil {
			cleaned = abs
		}
	}
	return cleaned
}
