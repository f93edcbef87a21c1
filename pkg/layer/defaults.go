package layer

import "sort"

// Setting is a single key/value pair of a layer's settings.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Settings is an ordered list of layer settings.
type Settings []Setting

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	copy(out, s)
	return out
}

// Get returns the value stored for key.
func (s Settings) Get(key string) (string, bool) {
	for _, setting := range s {
		if setting.Key == key {
			return setting.Value, true
		}
	}
	return "", false
}

// Set updates key in place or appends it, preserving order.
func (s Settings) Set(key, value string) Settings {
	for i := range s {
		if s[i].Key == key {
			s[i].Value = value
			return s
		}
	}
	return append(s, Setting{Key: key, Value: value})
}

// DefaultsCatalog maps layer names to their declared default settings. It is
// read-only after construction and hands out copies only.
type DefaultsCatalog struct {
	entries map[string]Settings
}

// NewDefaultsCatalog builds a catalog from discovered manifests. The first
// manifest seen for a name wins, matching discovery precedence.
func NewDefaultsCatalog(manifests []Manifest) *DefaultsCatalog {
	entries := make(map[string]Settings, len(manifests))
	for _, m := range manifests {
		if _, seen := entries[m.Name]; seen {
			continue
		}
		entries[m.Name] = m.DefaultSettings()
	}
	return &DefaultsCatalog{entries: entries}
}

// Lookup returns a copy of the defaults for name.
func (c *DefaultsCatalog) Lookup(name string) (Settings, bool) {
	if c == nil {
		return nil, false
	}
	settings, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return settings.Clone(), true
}

// Names lists the layer names known to the catalog, sorted.
func (c *DefaultsCatalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of layers in the catalog.
func (c *DefaultsCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
