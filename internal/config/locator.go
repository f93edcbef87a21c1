package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvPreferences names the environment variable overriding the preferences path.
const EnvPreferences = "VKCONFIG_CONFIG"

// PreferencesFileName is the file created inside the vkconfig config directory.
const PreferencesFileName = "vkconfig.toml"

// PreferencesSource identifies where the preferences file was discovered.
type PreferencesSource string

const (
	SourceExplicit PreferencesSource = "explicit"
	SourceEnv      PreferencesSource = "env"
	SourceXDG      PreferencesSource = "xdg"
	SourceHome     PreferencesSource = "home"
)

// LocationResult describes the preferences file to use. Exists is false when
// the file will be created on first save.
type LocationResult struct {
	Path   string
	Source PreferencesSource
	Exists bool
}

// ErrPreferencesLocation is returned when no candidate location can be derived.
var ErrPreferencesLocation = errors.New("preferences location unavailable")

// LocatePreferences resolves the preferences file following the precedence rules:
// explicit path → VKCONFIG_CONFIG → $XDG_CONFIG_HOME/vkconfig → ~/.config/vkconfig.
// Explicit and environment paths are returned even when missing. Otherwise the
// first existing default wins, falling back to the first candidate.
func LocatePreferences(explicitPath string) (LocationResult, error) {
	if path := strings.TrimSpace(explicitPath); path != "" {
		return pinned(filepath.Clean(path), SourceExplicit)
	}

	if path, ok := os.LookupEnv(EnvPreferences); ok && strings.TrimSpace(path) != "" {
		return pinned(strings.TrimSpace(path), SourceEnv)
	}

	var candidates []LocationResult
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		candidates = append(candidates, LocationResult{
			Path:   filepath.Join(xdg, "vkconfig", PreferencesFileName),
			Source: SourceXDG,
		})
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates, LocationResult{
			Path:   filepath.Join(home, ".config", "vkconfig", PreferencesFileName),
			Source: SourceHome,
		})
	}
	if len(candidates) == 0 {
		return LocationResult{}, ErrPreferencesLocation
	}

	for _, candidate := range candidates {
		if exists(candidate.Path) {
			candidate.Exists = true
			return candidate, nil
		}
	}
	return candidates[0], nil
}

func pinned(path string, source PreferencesSource) (LocationResult, error) {
	abs, err := toAbsolute(path)
	if err != nil {
		return LocationResult{}, err
	}
	if stat, err := os.Stat(abs); err == nil && stat.IsDir() {
		return LocationResult{}, fmt.Errorf("%w: %s is a directory", ErrPreferencesLocation, abs)
	}
	return LocationResult{Path: abs, Source: source, Exists: exists(abs)}, nil
}

func toAbsolute(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	return abs, nil
}

func exists(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}
