package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dobrovols/vkconfig/internal/config"
)

func TestLocatePreferencesExplicitPathHasPriority(t *testing.T) {
	tmpDir := t.TempDir()
	explicitPath := filepath.Join(tmpDir, "explicit.toml")
	mustWriteFile(t, explicitPath, "launchapp = \"\"\n")

	t.Setenv(config.EnvPreferences, filepath.Join(tmpDir, "env.toml"))

	result, err := config.LocatePreferences(explicitPath)
	if err != nil {
		t.Fatalf("LocatePreferences returned error: %v", err)
	}
	if result.Path != explicitPath || result.Source != config.SourceExplicit || !result.Exists {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLocatePreferencesExplicitMissingIsAllowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.toml")

	result, err := config.LocatePreferences(path)
	if err != nil {
		t.Fatalf("LocatePreferences returned error: %v", err)
	}
	if result.Exists {
		t.Fatalf("expected missing file to be reported, got %+v", result)
	}
}

func TestLocatePreferencesRejectsDirectory(t *testing.T) {
	_, err := config.LocatePreferences(t.TempDir())
	if !errors.Is(err, config.ErrPreferencesLocation) {
		t.Fatalf("expected ErrPreferencesLocation, got %v", err)
	}
}

func TestLocatePreferencesEnvironmentVariable(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "env.toml")
	t.Setenv(config.EnvPreferences, envPath)

	result, err := config.LocatePreferences("")
	if err != nil {
		t.Fatalf("LocatePreferences returned error: %v", err)
	}
	if result.Path != envPath || result.Source != config.SourceEnv {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLocatePreferencesXDGDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(config.EnvPreferences, "")
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("HOME", t.TempDir())

	xdgPath := filepath.Join(tmpDir, "vkconfig", config.PreferencesFileName)
	mustWriteFile(t, xdgPath, "firstrun = false\n")

	result, err := config.LocatePreferences("")
	if err != nil {
		t.Fatalf("LocatePreferences returned error: %v", err)
	}
	if result.Path != xdgPath || result.Source != config.SourceXDG || !result.Exists {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLocatePreferencesHomeWinsWhenOnlyHomeExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.EnvPreferences, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", home)

	homePath := filepath.Join(home, ".config", "vkconfig", config.PreferencesFileName)
	mustWriteFile(t, homePath, "firstrun = false\n")

	result, err := config.LocatePreferences("")
	if err != nil {
		t.Fatalf("LocatePreferences returned error: %v", err)
	}
	if result.Path != homePath || result.Source != config.SourceHome {
		t.Fatalf("expected home path %q, got %+v", homePath, result)
	}
}

func TestLocatePreferencesDefaultsToFirstCandidate(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv(config.EnvPreferences, "")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())

	result, err := config.LocatePreferences("")
	if err != nil {
		t.Fatalf("LocatePreferences returned error: %v", err)
	}
	want := filepath.Join(xdg, "vkconfig", config.PreferencesFileName)
	if result.Path != want || result.Exists {
		t.Fatalf("expected pending XDG path %q, got %+v", want, result)
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
