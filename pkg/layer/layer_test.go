package layer_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dobrovols/vkconfig/pkg/layer"
)

const validationManifest = `{
  "file_format_version": "1.1.2",
  "layer": {
    "name": "VK_LAYER_KHRONOS_validation",
    "type": "GLOBAL",
    "library_path": "libVkLayer_khronos_validation.so",
    "api_version": "1.2.162",
    "implementation_version": "1",
    "description": "Khronos validation",
    "settings": [
      {"key": "debug_action", "type": "enum", "default": "VK_DBG_LAYER_ACTION_LOG_MSG",
       "options": ["VK_DBG_LAYER_ACTION_LOG_MSG", "VK_DBG_LAYER_ACTION_BREAK"]},
      {"key": "report_flags", "type": "flags", "default": ["error", "warn"]},
      {"key": "duplicate_message_limit", "type": "int", "default": 10},
      {"key": "enable_message_limit", "type": "bool", "default": true}
    ]
  }
}`

func TestParseSingleLayerManifest(t *testing.T) {
	prov := layer.Provenance{Rank: layer.RankSystem, Origin: "/usr/share/vulkan/explicit_layer.d"}
	manifests, err := layer.Parse("/usr/share/vulkan/explicit_layer.d/validation.json", []byte(validationManifest), layer.TypeExplicit, prov)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(manifests))
	}
	m := manifests[0]
	if m.Name != "VK_LAYER_KHRONOS_validation" {
		t.Fatalf("unexpected name %q", m.Name)
	}
	if m.ImplementationVersion != "1" || m.APIVersion != "1.2.162" {
		t.Fatalf("unexpected version metadata: %+v", m)
	}
	if m.Provenance != prov {
		t.Fatalf("unexpected provenance %+v", m.Provenance)
	}

	want := layer.Settings{
		{Key: "debug_action", Value: "VK_DBG_LAYER_ACTION_LOG_MSG"},
		{Key: "report_flags", Value: "error,warn"},
		{Key: "duplicate_message_limit", Value: "10"},
		{Key: "enable_message_limit", Value: "true"},
	}
	if diff := cmp.Diff(want, m.DefaultSettings()); diff != "" {
		t.Fatalf("default settings mismatch (-want +got):\n%s", diff)
	}
	if got := m.Settings[0].Options; len(got) != 2 {
		t.Fatalf("expected enum options, got %v", got)
	}
}

func TestParseMultiLayerManifest(t *testing.T) {
	data := `{"file_format_version": "1.0.1", "layers": [
		{"name": "VK_LAYER_A", "api_version": "1.2.0"},
		{"name": "VK_LAYER_B", "api_version": "1.2.0"}
	]}`
	manifests, err := layer.Parse("multi.json", []byte(data), layer.TypeImplicit, layer.Provenance{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(manifests) != 2 || manifests[0].Name != "VK_LAYER_A" || manifests[1].Name != "VK_LAYER_B" {
		t.Fatalf("unexpected manifests: %+v", manifests)
	}
	if manifests[1].Type != layer.TypeImplicit {
		t.Fatalf("expected implicit type, got %s", manifests[1].Type)
	}
}

func TestParseRejectsMalformedManifests(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"file_format_version": `,
		"no layers":      `{"file_format_version": "1.0.0"}`,
		"missing name":   `{"file_format_version": "1.0.0", "layer": {"api_version": "1.0"}}`,
		"missing format": `{"layer": {"name": "VK_LAYER_X", "api_version": "1.0"}}`,
	}
	for name, data := range cases {
		if _, err := layer.Parse(name, []byte(data), layer.TypeExplicit, layer.Provenance{}); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if name != "not json" && !errors.Is(err, layer.ErrInvalidManifest) {
			t.Fatalf("%s: expected ErrInvalidManifest, got %v", name, err)
		}
	}
}

func TestDefaultsCatalogReturnsCopies(t *testing.T) {
	manifests := []layer.Manifest{
		{Name: "VK_LAYER_A", Settings: []layer.SettingSpec{{Key: "k", Default: "v"}}},
		{Name: "VK_LAYER_A", Settings: []layer.SettingSpec{{Key: "k", Default: "shadowed"}}},
	}
	catalog := layer.NewDefaultsCatalog(manifests)

	first, ok := catalog.Lookup("VK_LAYER_A")
	if !ok {
		t.Fatalf("expected defaults for VK_LAYER_A")
	}
	if v, _ := first.Get("k"); v != "v" {
		t.Fatalf("expected first manifest to win, got %q", v)
	}
	first.Set("k", "mutated")

	second, _ := catalog.Lookup("VK_LAYER_A")
	if v, _ := second.Get("k"); v != "v" {
		t.Fatalf("catalog was mutated through a lookup copy: %q", v)
	}
	if _, ok := catalog.Lookup("VK_LAYER_MISSING"); ok {
		t.Fatalf("expected missing layer lookup to fail")
	}
	if catalog.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", catalog.Len())
	}
}

func TestSettingsSetAppendsAndUpdates(t *testing.T) {
	var s layer.Settings
	s = s.Set("a", "1")
	s = s.Set("b", "2")
	s = s.Set("a", "3")
	want := layer.Settings{{Key: "a", Value: "3"}, {Key: "b", Value: "2"}}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}
