// Package sessiontest opens sessions over temporary directories for command
// tests.
package sessiontest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dobrovols/vkconfig/internal/cli/session"
	"github.com/dobrovols/vkconfig/internal/config"
	"github.com/dobrovols/vkconfig/internal/platform"
	"github.com/dobrovols/vkconfig/internal/validation"
)

// Env describes the isolated host a session runs against.
type Env struct {
	Root    string
	Layers  string
	Options session.Options
	Stderr  *bytes.Buffer
}

type inspector struct{}

func (inspector) LoaderVersion() (validation.Version, bool) {
	return validation.Version{Major: 1, Minor: 3, Patch: 280}, true
}
func (inspector) Getenv(string) string { return "" }
func (inspector) Writable(string) bool { return true }

// Manifest returns a layer manifest declaring one string setting.
func Manifest(name, settingKey, settingDefault string) string {
	return fmt.Sprintf(`{
  "file_format_version": "1.1.0",
  "layer": {
    "name": %q,
    "type": "GLOBAL",
    "library_path": "libtest.so",
    "api_version": "1.3.0",
    "implementation_version": "1",
    "description": "test layer",
    "settings": [{"key": %q, "type": "string", "default": %q}]
  }
}`, name, settingKey, settingDefault)
}

// Isolate points HOME and the XDG directories at a temporary root and
// installs one explicit layer per name.
func Isolate(t *testing.T, layerNames ...string) Env {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", filepath.Join(root, "home"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("VKCONFIG_CONFIG", "")

	layers := filepath.Join(root, "layers")
	for _, name := range layerNames {
		WriteFile(t, filepath.Join(layers, "explicit_layer.d", name+".json"), Manifest(name, "level", "default"))
	}
	return Env{
		Root:   root,
		Layers: layers,
		Options: session.Options{
			ConfigPath: filepath.Join(root, "config", "vkconfig", config.PreferencesFileName),
			LogFormat:  "json",
			LogLevel:   "error",
			System:     &platform.DirectorySystem{UserRoots: []string{layers}},
			Inspector:  inspector{},
		},
		Stderr: &bytes.Buffer{},
	}
}

// Open opens a session for env and closes it when the test ends.
func (e Env) Open(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.Open(e.Options, e.Stderr)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// WriteFile creates path and its parents.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
