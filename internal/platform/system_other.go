//go:build !windows

package platform

import (
	"os"
	"path/filepath"
)

// NewSystem returns the host implementation.
func NewSystem() System {
	home, _ := os.UserHomeDir()
	return DefaultDirectorySystem(os.Getenv, home)
}

// OverrideDirectories returns where the loader picks up a per-user override:
// the layer settings directory and the implicit layer directory.
func OverrideDirectories(getenv func(string) string, home string) (settings, manifests string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	dataHome := getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	root := filepath.Join(dataHome, "vulkan")
	return filepath.Join(root, "settings.d"), filepath.Join(root, implicitDir)
}
