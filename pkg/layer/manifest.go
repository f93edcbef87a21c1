// Package layer models Vulkan layer manifests discovered on the host and the
// read-only catalog of their default settings.
package layer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Type captures how the loader finds a layer.
type Type string

const (
	TypeExplicit Type = "explicit"
	TypeImplicit Type = "implicit"
	TypeCustom   Type = "custom"
)

// Rank orders discovery sources. Lower ranks take precedence.
type Rank int

const (
	RankCustom Rank = iota
	RankUser
	RankSystem
)

func (r Rank) String() string {
	switch r {
	case RankCustom:
		return "custom"
	case RankUser:
		return "user"
	case RankSystem:
		return "system"
	default:
		return "rank(" + strconv.Itoa(int(r)) + ")"
	}
}

// Provenance records where a manifest was discovered.
type Provenance struct {
	Rank   Rank
	Origin string
}

// SettingKind is the declared type of a layer setting.
type SettingKind string

const (
	SettingBool     SettingKind = "bool"
	SettingEnum     SettingKind = "enum"
	SettingFlags    SettingKind = "flags"
	SettingString   SettingKind = "string"
	SettingInt      SettingKind = "int"
	SettingLoadFile SettingKind = "load_file"
	SettingSaveFile SettingKind = "save_file"
)

// SettingSpec is one entry of a layer's declared settings schema.
type SettingSpec struct {
	Key         string
	Label       string
	Description string
	Kind        SettingKind
	Default     string
	Options     []string
}

// Manifest is one layer declared by a manifest file. Values are never
// mutated after discovery.
type Manifest struct {
	Name                  string
	Description           string
	Type                  Type
	Path                  string
	LibraryPath           string
	APIVersion            string
	ImplementationVersion string
	FileFormatVersion     string
	Settings              []SettingSpec
	Provenance            Provenance
}

// OverrideName is the meta-layer written by the override. Discovery never
// reports it as an installed layer.
const OverrideName = "VK_LAYER_LUNARG_override"

// ErrNoLayers is returned when a manifest declares neither "layer" nor "layers".
var ErrNoLayers = errors.New("manifest declares no layers")

type rawManifest struct {
	FileFormatVersion string     `json:"file_format_version"`
	Layer             *rawLayer  `json:"layer"`
	Layers            []rawLayer `json:"layers"`
}

type rawLayer struct {
	Name                  string       `json:"name"`
	Type                  string       `json:"type"`
	LibraryPath           string       `json:"library_path"`
	APIVersion            string       `json:"api_version"`
	ImplementationVersion any          `json:"implementation_version"`
	Description           string       `json:"description"`
	Settings              []rawSetting `json:"settings"`
}

type rawSetting struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Default     any    `json:"default"`
	Options     []any  `json:"options"`
}

// Parse decodes the manifest file at path. A file may declare several
// layers; each becomes its own Manifest tagged with typ and prov.
func Parse(path string, data []byte, typ Type, prov Provenance) ([]Manifest, error) {
	if err := ValidateManifest(data); err != nil {
		return nil, fmt.Errorf("manifest %q: %w", path, err)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}

	layers := raw.Layers
	if raw.Layer != nil {
		layers = append([]rawLayer{*raw.Layer}, layers...)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("manifest %q: %w", path, ErrNoLayers)
	}

	out := make([]Manifest, 0, len(layers))
	for _, l := range layers {
		specs := make([]SettingSpec, 0, len(l.Settings))
		for _, s := range l.Settings {
			spec := SettingSpec{
				Key:         strings.TrimSpace(s.Key),
				Label:       s.Label,
				Description: s.Description,
				Kind:        SettingKind(strings.ToLower(s.Type)),
				Default:     stringify(s.Default),
			}
			for _, opt := range s.Options {
				spec.Options = append(spec.Options, stringify(opt))
			}
			specs = append(specs, spec)
		}
		out = append(out, Manifest{
			Name:                  strings.TrimSpace(l.Name),
			Description:           l.Description,
			Type:                  typ,
			Path:                  path,
			LibraryPath:           l.LibraryPath,
			APIVersion:            l.APIVersion,
			ImplementationVersion: stringify(l.ImplementationVersion),
			FileFormatVersion:     raw.FileFormatVersion,
			Settings:              specs,
			Provenance:            prov,
		})
	}
	return out, nil
}

// DefaultSettings returns the manifest's declared defaults in schema order.
func (m Manifest) DefaultSettings() Settings {
	out := make(Settings, 0, len(m.Settings))
	for _, spec := range m.Settings {
		if spec.Key == "" {
			continue
		}
		out = append(out, Setting{Key: spec.Key, Value: spec.Default})
	}
	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
