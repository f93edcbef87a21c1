// Package discovery enumerates the Vulkan layer manifests visible to the host
// in precedence order: custom folders, per-user locations, then system-wide
// locations. The first manifest seen for a layer name wins.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dobrovols/vkconfig/internal/platform"
	"github.com/dobrovols/vkconfig/pkg/layer"
	"github.com/dobrovols/vkconfig/pkg/paths"
)

// Warning reports a manifest that was skipped during a scan.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("skipped %s: %v", w.Path, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Result is the outcome of one discovery pass.
type Result struct {
	Layers   []layer.Manifest
	Shadowed []layer.Manifest
	Warnings []Warning
	Defaults *layer.DefaultsCatalog
}

// FindLayerNamed returns the discovered manifest for name. When location is
// not empty the manifest path must also match it.
func (r Result) FindLayerNamed(name, location string) (layer.Manifest, bool) {
	for _, m := range r.Layers {
		if m.Name != name {
			continue
		}
		if location != "" && filepath.Clean(location) != filepath.Clean(m.Path) {
			continue
		}
		return m, true
	}
	return layer.Manifest{}, false
}

// Scanner walks the platform's manifest locations plus user custom folders.
type Scanner struct {
	system      platform.System
	paths       *paths.Manager
	customPaths []string
}

// NewScanner constructs a scanner. Relative custom paths resolve against the
// CUSTOM_LAYERS role of resolver.
func NewScanner(system platform.System, resolver *paths.Manager) *Scanner {
	if system == nil {
		system = platform.NewSystem()
	}
	if resolver == nil {
		resolver = paths.New("")
	}
	return &Scanner{system: system, paths: resolver}
}

// SetCustomPaths replaces the list of user custom folders or manifest files.
func (s *Scanner) SetCustomPaths(custom []string) {
	s.customPaths = append([]string(nil), custom...)
}

// CustomPaths returns the resolved custom locations.
func (s *Scanner) CustomPaths() []string {
	out := make([]string, 0, len(s.customPaths))
	for _, p := range s.customPaths {
		if resolved := s.paths.Resolve(paths.RoleCustomLayers, p); resolved != "" {
			out = append(out, resolved)
		}
	}
	return out
}

// Locations returns every location in scan order, custom folders first.
func (s *Scanner) Locations() ([]platform.Location, error) {
	var out []platform.Location
	for _, p := range s.CustomPaths() {
		info, err := os.Stat(p)
		isFile := err == nil && !info.IsDir()
		out = append(out, platform.Location{Path: p, File: isFile, Type: layer.TypeCustom, Rank: layer.RankCustom, Origin: p})
	}
	registered, err := s.system.LayerLocations()
	if err != nil {
		return out, fmt.Errorf("enumerate layer locations: %w", err)
	}
	return append(out, registered...), nil
}

// FindAllInstalledLayers performs a fresh scan. Problems with individual
// manifests become warnings; the scan never aborts.
func (s *Scanner) FindAllInstalledLayers() Result {
	var result Result
	seen := map[string]bool{}

	locations, err := s.Locations()
	if err != nil {
		result.Warnings = append(result.Warnings, Warning{Path: "layer locations", Err: err})
	}

	for _, loc := range locations {
		files, warn := s.manifestFiles(loc)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
		}
		for _, file := range files {
			data, err := s.system.ReadFile(file)
			if err != nil {
				result.Warnings = append(result.Warnings, Warning{Path: file, Err: err})
				continue
			}
			prov := layer.Provenance{Rank: loc.Rank, Origin: loc.Origin}
			manifests, err := layer.Parse(file, data, loc.Type, prov)
			if err != nil {
				result.Warnings = append(result.Warnings, Warning{Path: file, Err: err})
				continue
			}
			for _, m := range manifests {
				if m.Name == layer.OverrideName {
					continue
				}
				if seen[m.Name] {
					result.Shadowed = append(result.Shadowed, m)
					continue
				}
				seen[m.Name] = true
				result.Layers = append(result.Layers, m)
			}
		}
	}

	result.Defaults = layer.NewDefaultsCatalog(result.Layers)
	return result
}

// manifestFiles lists the manifests of a location. Missing registered
// directories are normal and stay silent; a missing custom path or registry
// manifest is reported.
func (s *Scanner) manifestFiles(loc platform.Location) ([]string, *Warning) {
	if loc.File {
		return []string{loc.Path}, nil
	}
	files, err := s.system.ListManifests(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && loc.Rank != layer.RankCustom {
			return nil, nil
		}
		return nil, &Warning{Path: loc.Path, Err: err}
	}
	return files, nil
}

// WatchDirectories returns the existing manifest directories of a scan, used
// to rescan when their contents change.
func (s *Scanner) WatchDirectories() []string {
	locations, _ := s.Locations()
	seen := map[string]bool{}
	var out []string
	for _, loc := range locations {
		dir := loc.Path
		if loc.File {
			dir = filepath.Dir(dir)
		}
		if seen[dir] {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		seen[dir] = true
		out = append(out, dir)
	}
	return out
}
