package override

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/layer"
)

const (
	// LayerName is the meta-layer the loader enables for the override.
	LayerName = layer.OverrideName

	metaFileFormatVersion = "1.1.2"
	metaAPIVersion        = "1.2.0"
	disableEnvironment    = "DISABLE_VK_LAYER_LUNARG_override"
)

// Scope limits which applications the override applies to.
type Scope struct {
	ApplyOnlyToList bool
	// Applications are executable paths the override is restricted to when
	// ApplyOnlyToList is set.
	Applications []string
}

// SettingsPrefix returns the key prefix the loader expects for a layer's
// settings: the name without VK_LAYER_, lowercased.
func SettingsPrefix(layerName string) string {
	name := layerName
	if len(name) >= len("VK_LAYER_") && strings.EqualFold(name[:len("VK_LAYER_")], "VK_LAYER_") {
		name = name[len("VK_LAYER_"):]
	}
	return strings.ToLower(name)
}

// RenderSettings writes one section per layer of stack, in order. Keys and
// values that would break the line format are rejected with
// ErrUnsafeSetting.
func RenderSettings(stack []configuration.LayerRef) ([]byte, error) {
	var buf bytes.Buffer
	for i, ref := range stack {
		if strings.ContainsAny(ref.Name, "\r\n") {
			return nil, fmt.Errorf("%w: layer name %q", ErrUnsafeSetting, ref.Name)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "# %s\n", ref.Name)
		prefix := SettingsPrefix(ref.Name)
		for _, s := range ref.Settings {
			if s.Key == "" || strings.ContainsAny(s.Key, "=\r\n") || strings.ContainsAny(s.Value, "\r\n") {
				return nil, fmt.Errorf("%w: %s key %q", ErrUnsafeSetting, ref.Name, s.Key)
			}
			fmt.Fprintf(&buf, "%s.%s = %s\n", prefix, s.Key, s.Value)
		}
	}
	return buf.Bytes(), nil
}

type metaManifest struct {
	FileFormatVersion string    `json:"file_format_version"`
	Layer             metaLayer `json:"layer"`
}

type metaLayer struct {
	Name                  string            `json:"name"`
	Type                  string            `json:"type"`
	APIVersion            string            `json:"api_version"`
	ImplementationVersion string            `json:"implementation_version"`
	Description           string            `json:"description"`
	OverridePaths         []string          `json:"override_paths,omitempty"`
	ManifestPaths         []string          `json:"manifest_paths,omitempty"`
	ComponentLayers       []string          `json:"component_layers"`
	BlacklistedLayers     []string          `json:"blacklisted_layers,omitempty"`
	DisableEnvironment    map[string]string `json:"disable_environment"`
	AppKeys               []string          `json:"app_keys,omitempty"`
}

// RenderManifest builds the override meta-layer manifest for cfg.
func RenderManifest(cfg *configuration.Configuration, scope Scope) ([]byte, error) {
	meta := metaLayer{
		Name:                  LayerName,
		Type:                  "GLOBAL",
		APIVersion:            metaAPIVersion,
		ImplementationVersion: "1",
		Description:           "LunarG Override Layer",
		ComponentLayers:       []string{},
		BlacklistedLayers:     cfg.ForcedOff(),
		DisableEnvironment:    map[string]string{disableEnvironment: "1"},
	}
	seenDir := map[string]bool{}
	for _, ref := range cfg.Stack() {
		meta.ComponentLayers = append(meta.ComponentLayers, ref.Name)
		if ref.ManifestPath == "" {
			continue
		}
		manifest, err := filepath.Abs(ref.ManifestPath)
		if err != nil {
			return nil, err
		}
		meta.ManifestPaths = append(meta.ManifestPaths, manifest)
		if dir := filepath.Dir(manifest); !seenDir[dir] {
			seenDir[dir] = true
			meta.OverridePaths = append(meta.OverridePaths, dir)
		}
	}
	if scope.ApplyOnlyToList {
		meta.AppKeys = append([]string{}, scope.Applications...)
	}

	data, err := json.MarshalIndent(metaManifest{FileFormatVersion: metaFileFormatVersion, Layer: meta}, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
