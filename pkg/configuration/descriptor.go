package configuration

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dobrovols/vkconfig/pkg/layer"
	"github.com/dobrovols/vkconfig/pkg/paths"
)

// FileFormatVersion is written to every descriptor.
const FileFormatVersion = "1.0.0"

type descriptor struct {
	FileFormatVersion string            `json:"file_format_version"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Layers            []descriptorLayer `json:"layers"`
}

type descriptorLayer struct {
	Name     string         `json:"name"`
	Rank     int            `json:"rank"`
	State    string         `json:"state"`
	Settings layer.Settings `json:"settings,omitempty"`
}

const descriptorSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["file_format_version", "layers"],
  "properties": {
    "file_format_version": {"type": "string", "pattern": "^1\\."},
    "name": {"type": "string"},
    "description": {"type": "string"},
    "layers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "pattern": "^[^\\r\\n]+$"},
          "rank": {"type": "integer", "minimum": 0},
          "state": {"type": "string", "enum": ["enabled", "disabled", "forced-off", ""]},
          "settings": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["key", "value"],
              "properties": {
                "key": {"type": "string", "pattern": "^[^=\\r\\n]+$"},
                "value": {"type": "string", "pattern": "^[^\\r\\n]*$"}
              }
            }
          }
        }
      }
    }
  }
}`

var (
	descriptorOnce   sync.Once
	descriptorLoader *gojsonschema.Schema
	descriptorErr    error
)

func validateDescriptor(data []byte) error {
	descriptorOnce.Do(func() {
		descriptorLoader, descriptorErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(descriptorSchema))
	})
	if descriptorErr != nil {
		return fmt.Errorf("compile descriptor schema: %w", descriptorErr)
	}
	result, err := descriptorLoader.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidDescriptor, strings.Join(issues, "; "))
	}
	return nil
}

// Decode parses descriptor bytes. The name falls back to the file's base name
// when the descriptor carries none. References are not resolved.
func Decode(path string, data []byte) (*Configuration, error) {
	if err := validateDescriptor(data); err != nil {
		return nil, err
	}
	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), paths.DescriptorSuffix)
	}
	cfg := &Configuration{Name: name, Description: d.Description, Path: path}
	seen := map[string]bool{}
	for _, l := range d.Layers {
		if seen[l.Name] {
			return nil, fmt.Errorf("%w: layer %q listed twice", ErrInvalidDescriptor, l.Name)
		}
		seen[l.Name] = true
		st, err := ParseState(l.State)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
		}
		cfg.Layers = append(cfg.Layers, LayerRef{
			Name:     l.Name,
			Rank:     l.Rank,
			State:    st,
			Settings: l.Settings,
		})
	}
	cfg.sortByRank()
	cfg.renumber()
	return cfg, nil
}

// Encode renders cfg as a descriptor. Ranks follow stack order.
func Encode(cfg *Configuration) ([]byte, error) {
	d := descriptor{
		FileFormatVersion: FileFormatVersion,
		Name:              cfg.Name,
		Description:       cfg.Description,
		Layers:            make([]descriptorLayer, 0, len(cfg.Layers)),
	}
	for i, ref := range cfg.Layers {
		st := ref.State
		if st == "" {
			st = StateEnabled
		}
		d.Layers = append(d.Layers, descriptorLayer{
			Name:     ref.Name,
			Rank:     i,
			State:    string(st),
			Settings: ref.Settings,
		})
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	// Settings end up in a line-based file; what Decode would reject is never
	// written.
	if err := validateDescriptor(data); err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
