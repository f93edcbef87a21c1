package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dobrovols/vkconfig/pkg/configurator"
	"github.com/dobrovols/vkconfig/pkg/state"
)

// ApplicationsFileName is kept next to the preferences file.
const ApplicationsFileName = "applications.yaml"

const applicationsVersion = 1

var (
	// ErrInvalidApplicationList is returned for entries that cannot be launched.
	ErrInvalidApplicationList = errors.New("invalid application list")
	// ErrUnsupportedVersion is returned for files written by a newer release.
	ErrUnsupportedVersion = errors.New("unsupported application list version")
)

// ApplicationsPath returns the application list path for a preferences file.
func ApplicationsPath(preferencesPath string) string {
	return filepath.Join(filepath.Dir(preferencesPath), ApplicationsFileName)
}

// ApplicationFile stores the application list as YAML.
type ApplicationFile struct {
	path string
}

var _ configurator.ApplicationList = (*ApplicationFile)(nil)

// NewApplicationFile constructs a store for path. Nothing is read until Load.
func NewApplicationFile(path string) *ApplicationFile {
	return &ApplicationFile{path: path}
}

// Path returns the file location.
func (f *ApplicationFile) Path() string { return f.path }

type rawApplications struct {
	Version      int              `yaml:"version"`
	Applications []rawApplication `yaml:"applications"`
}

type rawApplication struct {
	Name             string `yaml:"name,omitempty"`
	Executable       string `yaml:"executable"`
	WorkingDirectory string `yaml:"workingDirectory,omitempty"`
	Arguments        string `yaml:"arguments,omitempty"`
	LogFile          string `yaml:"logFile,omitempty"`
	Override         bool   `yaml:"override"`
}

// Load parses the list. A missing file is an empty list. Unknown fields,
// missing executables and duplicates are rejected.
func (f *ApplicationFile) Load() ([]configurator.Application, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read application list %q: %w", f.path, err)
	}

	var raw rawApplications
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse application list %q: %w", f.path, err)
	}
	if raw.Version > applicationsVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, raw.Version)
	}

	seen := map[string]bool{}
	apps := make([]configurator.Application, 0, len(raw.Applications))
	for i, entry := range raw.Applications {
		executable := strings.TrimSpace(entry.Executable)
		if executable == "" {
			return nil, fmt.Errorf("%w: entry %d has no executable", ErrInvalidApplicationList, i+1)
		}
		if seen[executable] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidApplicationList, executable)
		}
		seen[executable] = true
		apps = append(apps, configurator.Application{
			Name:            entry.Name,
			Executable:      executable,
			WorkingDir:      entry.WorkingDirectory,
			Arguments:       entry.Arguments,
			LogFile:         entry.LogFile,
			OverrideEnabled: entry.Override,
		})
	}
	return apps, nil
}

// Save replaces the file atomically.
func (f *ApplicationFile) Save(apps []configurator.Application) error {
	raw := rawApplications{Version: applicationsVersion, Applications: make([]rawApplication, 0, len(apps))}
	for _, app := range apps {
		raw.Applications = append(raw.Applications, rawApplication{
			Name:             app.Name,
			Executable:       app.Executable,
			WorkingDirectory: app.WorkingDir,
			Arguments:        app.Arguments,
			LogFile:          app.LogFile,
			Override:         app.OverrideEnabled,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("encode application list: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode application list: %w", err)
	}
	return state.WriteFile(f.path, buf.Bytes(), 0o600)
}
