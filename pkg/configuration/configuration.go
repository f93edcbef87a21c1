// Package configuration holds named layer stacks and the on-disk catalog they
// are persisted in.
package configuration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dobrovols/vkconfig/pkg/layer"
)

// State is how a layer reference participates in the override.
type State string

const (
	StateEnabled  State = "enabled"
	StateDisabled State = "disabled"
	// StateForcedOff excludes the layer from the stack and asks the loader to
	// block it even when it would be loaded implicitly.
	StateForcedOff State = "forced-off"
)

// ParseState validates a state name.
func ParseState(value string) (State, error) {
	switch s := State(strings.ToLower(strings.TrimSpace(value))); s {
	case StateEnabled, StateDisabled, StateForcedOff:
		return s, nil
	case "":
		return StateEnabled, nil
	default:
		return "", fmt.Errorf("unknown layer state %q", value)
	}
}

// LayerRef binds a discovered layer to a configuration.
type LayerRef struct {
	Name     string
	Rank     int
	State    State
	Settings layer.Settings
	// Usable is false when the layer was not found by the last discovery.
	Usable bool
	// ManifestPath is the manifest the reference resolved to.
	ManifestPath string
}

// Configuration is a named, ordered stack of layers with their settings.
type Configuration struct {
	Name        string
	Description string
	Layers      []LayerRef
	// Path is the descriptor file the configuration was loaded from or last
	// saved to.
	Path string
}

// Clone returns a deep copy.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	out := *c
	out.Layers = make([]LayerRef, len(c.Layers))
	for i, ref := range c.Layers {
		ref.Settings = ref.Settings.Clone()
		out.Layers[i] = ref
	}
	return &out
}

// Layer returns the reference for name, or nil.
func (c *Configuration) Layer(name string) *LayerRef {
	for i := range c.Layers {
		if c.Layers[i].Name == name {
			return &c.Layers[i]
		}
	}
	return nil
}

// SetLayer inserts or replaces the reference named ref.Name. New references
// go to the end of the stack.
func (c *Configuration) SetLayer(ref LayerRef) {
	if existing := c.Layer(ref.Name); existing != nil {
		ref.Rank = existing.Rank
		*existing = ref
		return
	}
	ref.Rank = len(c.Layers)
	c.Layers = append(c.Layers, ref)
}

// RemoveLayer drops name from the stack and renumbers the rest.
func (c *Configuration) RemoveLayer(name string) bool {
	for i := range c.Layers {
		if c.Layers[i].Name != name {
			continue
		}
		c.Layers = append(c.Layers[:i], c.Layers[i+1:]...)
		c.renumber()
		return true
	}
	return false
}

// Stack returns the references that are written to the override, in order.
func (c *Configuration) Stack() []LayerRef {
	var out []LayerRef
	for _, ref := range c.Layers {
		if ref.State == StateEnabled && ref.Usable {
			out = append(out, ref)
		}
	}
	return out
}

// ForcedOff lists the names of references forced off, in order.
func (c *Configuration) ForcedOff() []string {
	var out []string
	for _, ref := range c.Layers {
		if ref.State == StateForcedOff {
			out = append(out, ref.Name)
		}
	}
	return out
}

// Unusable lists references that did not resolve against discovery.
func (c *Configuration) Unusable() []string {
	var out []string
	for _, ref := range c.Layers {
		if !ref.Usable {
			out = append(out, ref.Name)
		}
	}
	return out
}

// IsEmpty reports whether no layer is written to the override and none is
// forced off.
func (c *Configuration) IsEmpty() bool {
	return len(c.Stack()) == 0 && len(c.ForcedOff()) == 0
}

func (c *Configuration) sortByRank() {
	sort.SliceStable(c.Layers, func(i, j int) bool { return c.Layers[i].Rank < c.Layers[j].Rank })
}

func (c *Configuration) renumber() {
	for i := range c.Layers {
		c.Layers[i].Rank = i
	}
}

// LayerIndex resolves layer names against discovery results.
type LayerIndex interface {
	FindLayerNamed(name, location string) (layer.Manifest, bool)
}

// Resolve marks every reference usable or not against index.
func (c *Configuration) Resolve(index LayerIndex) {
	for i := range c.Layers {
		ref := &c.Layers[i]
		ref.Usable = false
		ref.ManifestPath = ""
		if index == nil {
			continue
		}
		if m, ok := index.FindLayerNamed(ref.Name, ""); ok {
			ref.Usable = true
			ref.ManifestPath = m.Path
		}
	}
}

// NewFromLayers builds a configuration enabling every manifest in order, each
// with a private copy of its default settings.
func NewFromLayers(name string, manifests []layer.Manifest, defaults *layer.DefaultsCatalog) *Configuration {
	cfg := &Configuration{Name: name}
	for _, m := range manifests {
		if cfg.Layer(m.Name) != nil {
			continue
		}
		settings, ok := defaults.Lookup(m.Name)
		if !ok {
			settings = m.DefaultSettings()
		}
		cfg.SetLayer(LayerRef{
			Name:         m.Name,
			State:        StateEnabled,
			Settings:     settings,
			Usable:       true,
			ManifestPath: m.Path,
		})
	}
	return cfg
}
