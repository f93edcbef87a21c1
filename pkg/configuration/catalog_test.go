package configuration_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/layer"
	"github.com/dobrovols/vkconfig/pkg/paths"
)

type fakeIndex map[string]string

func (f fakeIndex) FindLayerNamed(name, _ string) (layer.Manifest, bool) {
	p, ok := f[name]
	if !ok {
		return layer.Manifest{}, false
	}
	return layer.Manifest{Name: name, Path: p}, true
}

var installed = fakeIndex{
	"VK_LAYER_KHRONOS_validation": "/usr/share/vulkan/explicit_layer.d/VkLayer_khronos_validation.json",
	"VK_LAYER_LUNARG_api_dump":    "/usr/share/vulkan/explicit_layer.d/VkLayer_api_dump.json",
}

func newCatalog(t *testing.T) (*configuration.Catalog, *paths.Manager) {
	t.Helper()
	home := t.TempDir()
	resolver := paths.New(home)
	resolver.SetPath(paths.RoleConfigurationStore, filepath.Join(home, "store"))
	return configuration.NewCatalog(resolver, installed), resolver
}

func sampleConfiguration(name string) *configuration.Configuration {
	cfg := &configuration.Configuration{Name: name, Description: "sample"}
	cfg.SetLayer(configuration.LayerRef{
		Name:  "VK_LAYER_KHRONOS_validation",
		State: configuration.StateEnabled,
		Settings: layer.Settings{
			{Key: "debug_action", Value: "VK_DBG_LAYER_ACTION_LOG_MSG"},
			{Key: "report_flags", Value: "error,warn"},
		},
	})
	cfg.SetLayer(configuration.LayerRef{Name: "VK_LAYER_LUNARG_api_dump", State: configuration.StateDisabled})
	cfg.SetLayer(configuration.LayerRef{Name: "VK_LAYER_LUNARG_monitor", State: configuration.StateForcedOff})
	return cfg
}

var ignoreResolution = cmpopts.IgnoreFields(configuration.LayerRef{}, "Usable", "ManifestPath")

func TestSaveLoadRoundTrip(t *testing.T) {
	catalog, _ := newCatalog(t)
	cfg := sampleConfiguration("Validation")

	if err := catalog.SaveConfiguration(cfg); err != nil {
		t.Fatalf("SaveConfiguration returned error: %v", err)
	}
	loaded, err := catalog.LoadConfiguration(cfg.Path)
	if err != nil {
		t.Fatalf("LoadConfiguration returned error: %v", err)
	}
	if loaded.Name != "Validation" || loaded.Description != "sample" {
		t.Fatalf("unexpected metadata %q %q", loaded.Name, loaded.Description)
	}
	if diff := cmp.Diff(cfg.Layers, loaded.Layers, ignoreResolution, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("layer references changed across save/load (-saved +loaded):\n%s", diff)
	}
}

func TestLoadFlagsUnresolvableReferences(t *testing.T) {
	catalog, _ := newCatalog(t)
	if err := catalog.SaveConfiguration(sampleConfiguration("Mixed")); err != nil {
		t.Fatalf("SaveConfiguration returned error: %v", err)
	}
	loaded, err := catalog.LoadConfiguration(catalog.FindConfiguration("Mixed").Path)
	if err != nil {
		t.Fatalf("LoadConfiguration returned error: %v", err)
	}
	if got := loaded.Unusable(); len(got) != 1 || got[0] != "VK_LAYER_LUNARG_monitor" {
		t.Fatalf("expected monitor to be unusable, got %v", got)
	}
	ref := loaded.Layer("VK_LAYER_KHRONOS_validation")
	if ref == nil || !ref.Usable || ref.ManifestPath != installed["VK_LAYER_KHRONOS_validation"] {
		t.Fatalf("expected validation resolved, got %+v", ref)
	}
	if stack := loaded.Stack(); len(stack) != 1 || stack[0].Name != "VK_LAYER_KHRONOS_validation" {
		t.Fatalf("unexpected stack %+v", stack)
	}
	if off := loaded.ForcedOff(); len(off) != 1 || off[0] != "VK_LAYER_LUNARG_monitor" {
		t.Fatalf("forced-off entries must survive resolution, got %v", off)
	}
}

func TestLoadAllIsolatesCorruptDescriptor(t *testing.T) {
	catalog, _ := newCatalog(t)
	for i := 1; i <= 5; i++ {
		if err := catalog.SaveConfiguration(sampleConfiguration(fmt.Sprintf("Config %d", i))); err != nil {
			t.Fatalf("SaveConfiguration returned error: %v", err)
		}
	}
	corrupt := filepath.Join(catalog.StoreDir(), "corrupt.json")
	if err := os.WriteFile(corrupt, []byte(`{"file_format_version": "1.0.0", "layers": [`), 0o644); err != nil {
		t.Fatalf("write corrupt descriptor: %v", err)
	}
	if err := os.WriteFile(filepath.Join(catalog.StoreDir(), "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	configs, failures := catalog.LoadAllConfigurations()
	if len(configs) != 5 {
		t.Fatalf("expected 5 configurations, got %d", len(configs))
	}
	if len(failures) != 1 || failures[0].Path != corrupt {
		t.Fatalf("expected one failure for %s, got %v", corrupt, failures)
	}
	if !errors.Is(failures[0], configuration.ErrInvalidDescriptor) {
		t.Fatalf("expected invalid descriptor error, got %v", failures[0])
	}
	if configs[0].Name != "Config 1" || configs[4].Name != "Config 5" {
		t.Fatalf("expected configurations sorted by name")
	}
}

func TestLoadAllWithFourValidAndOneCorrupt(t *testing.T) {
	catalog, _ := newCatalog(t)
	for i := 1; i <= 4; i++ {
		if err := catalog.SaveConfiguration(sampleConfiguration(fmt.Sprintf("Valid %d", i))); err != nil {
			t.Fatalf("SaveConfiguration returned error: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(catalog.StoreDir(), "broken.json"), []byte(`{"layers": "nope"}`), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	configs, failures := catalog.LoadAllConfigurations()
	if len(configs) != 4 || len(failures) != 1 {
		t.Fatalf("expected 4 configurations and 1 failure, got %d and %d", len(configs), len(failures))
	}
}

func TestLoadAllMissingStoreIsEmpty(t *testing.T) {
	catalog, _ := newCatalog(t)
	configs, failures := catalog.LoadAllConfigurations()
	if len(configs) != 0 || len(failures) != 0 {
		t.Fatalf("expected empty catalog, got %v %v", configs, failures)
	}
}

func TestDecodeRejectsDuplicateLayers(t *testing.T) {
	data := []byte(`{"file_format_version": "1.0.0", "name": "dup", "layers": [{"name": "VK_LAYER_a"}, {"name": "VK_LAYER_a"}]}`)
	if _, err := configuration.Decode("dup.json", data); !errors.Is(err, configuration.ErrInvalidDescriptor) {
		t.Fatalf("expected invalid descriptor, got %v", err)
	}
}

func TestDescriptorRejectsMultilineSettings(t *testing.T) {
	data := []byte(`{"file_format_version": "1.0.0", "name": "inject", "layers": [
		{"name": "VK_LAYER_a", "settings": [{"key": "log_filename", "value": "out.txt\nkhronos_validation.enables = x"}]}
	]}`)
	if _, err := configuration.Decode("inject.json", data); !errors.Is(err, configuration.ErrInvalidDescriptor) {
		t.Fatalf("expected invalid descriptor, got %v", err)
	}

	cfg := sampleConfiguration("inject")
	cfg.Layers[0].Settings[0].Value = "a\r\nb"
	if _, err := configuration.Encode(cfg); !errors.Is(err, configuration.ErrInvalidDescriptor) {
		t.Fatalf("expected Encode to refuse, got %v", err)
	}
}

func TestDecodeOrdersByRankAndDefaultsName(t *testing.T) {
	data := []byte(`{"file_format_version": "1.0.0", "layers": [
		{"name": "VK_LAYER_b", "rank": 3},
		{"name": "VK_LAYER_a", "rank": 1, "state": "disabled"}
	]}`)
	cfg, err := configuration.Decode("/store/Fallback Name.json", data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if cfg.Name != "Fallback Name" {
		t.Fatalf("expected file name fallback, got %q", cfg.Name)
	}
	if cfg.Layers[0].Name != "VK_LAYER_a" || cfg.Layers[0].Rank != 0 || cfg.Layers[1].Rank != 1 {
		t.Fatalf("unexpected order %+v", cfg.Layers)
	}
	if cfg.Layers[1].State != configuration.StateEnabled {
		t.Fatalf("missing state must default to enabled, got %q", cfg.Layers[1].State)
	}
}

func TestSaveFailureLeavesPriorDescriptor(t *testing.T) {
	catalog, _ := newCatalog(t)
	cfg := sampleConfiguration("Stable")
	if err := catalog.SaveConfiguration(cfg); err != nil {
		t.Fatalf("SaveConfiguration returned error: %v", err)
	}
	before, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}

	bad := cfg.Clone()
	bad.Name = "bad/name"
	err = catalog.SaveConfiguration(bad)
	var perr *configuration.PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, configuration.ErrInvalidName) {
		t.Fatalf("expected PersistenceError for invalid name, got %v", err)
	}

	after, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("read descriptor: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("descriptor changed after failed save")
	}
}

func TestSaveFailsWhenStoreIsFile(t *testing.T) {
	home := t.TempDir()
	blocker := filepath.Join(home, "store")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	resolver := paths.New(home)
	resolver.SetPath(paths.RoleConfigurationStore, blocker)
	catalog := configuration.NewCatalog(resolver, installed)

	err := catalog.SaveConfiguration(sampleConfiguration("Any"))
	var perr *configuration.PersistenceError
	if !errors.As(err, &perr) || perr.Op != "save" {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if catalog.FindConfiguration("Any") != nil {
		t.Fatal("failed save must not add the configuration")
	}
}

func TestCreateEmptyConfigurationNamesAreUnique(t *testing.T) {
	catalog, _ := newCatalog(t)
	first := catalog.CreateEmptyConfiguration()
	if first.Name != configuration.NewConfigurationName || len(first.Layers) != 0 {
		t.Fatalf("unexpected first configuration %+v", first)
	}
	if err := catalog.SaveConfiguration(first); err != nil {
		t.Fatalf("SaveConfiguration returned error: %v", err)
	}
	second := catalog.CreateEmptyConfiguration()
	if second.Name != configuration.NewConfigurationName+" (2)" {
		t.Fatalf("unexpected second name %q", second.Name)
	}
}

func TestImportExport(t *testing.T) {
	catalog, resolver := newCatalog(t)
	cfg := sampleConfiguration("Shared")
	if err := catalog.SaveConfiguration(cfg); err != nil {
		t.Fatalf("SaveConfiguration returned error: %v", err)
	}

	exportDir := t.TempDir()
	resolver.SetPath(paths.RoleExportConfiguration, exportDir)
	dest, err := catalog.ExportConfiguration(cfg.Path, "shared-copy")
	if err != nil {
		t.Fatalf("ExportConfiguration returned error: %v", err)
	}
	if dest != filepath.Join(exportDir, "shared-copy.json") {
		t.Fatalf("unexpected export path %s", dest)
	}

	imported, err := catalog.ImportConfiguration("shared-copy.json")
	if err != nil {
		t.Fatalf("ImportConfiguration returned error: %v", err)
	}
	if imported.Name != "Shared (2)" {
		t.Fatalf("expected colliding import renamed, got %q", imported.Name)
	}
	if filepath.Dir(imported.Path) != catalog.StoreDir() {
		t.Fatalf("expected import stored in %s, got %s", catalog.StoreDir(), imported.Path)
	}
	if diff := cmp.Diff(cfg.Layers, imported.Layers, ignoreResolution, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("import changed layers:\n%s", diff)
	}
}

func TestImportMalformedIsLoadError(t *testing.T) {
	catalog, _ := newCatalog(t)
	src := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(src, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := catalog.ImportConfiguration(src)
	var loadErr *configuration.LoadError
	if !errors.As(err, &loadErr) || loadErr.Path != src {
		t.Fatalf("expected LoadError for %s, got %v", src, err)
	}
}

func TestDeleteAndRename(t *testing.T) {
	catalog, _ := newCatalog(t)
	cfg := sampleConfiguration("Old")
	if err := catalog.SaveConfiguration(cfg); err != nil {
		t.Fatalf("SaveConfiguration returned error: %v", err)
	}
	oldPath := cfg.Path

	renamed, err := catalog.RenameConfiguration("Old", "New")
	if err != nil {
		t.Fatalf("RenameConfiguration returned error: %v", err)
	}
	if catalog.FindConfiguration("Old") != nil || catalog.FindConfiguration("New") != renamed {
		t.Fatal("catalog not updated by rename")
	}
	if _, err := os.Stat(oldPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected old descriptor removed, got %v", err)
	}

	if err := catalog.DeleteConfiguration("New"); err != nil {
		t.Fatalf("DeleteConfiguration returned error: %v", err)
	}
	if err := catalog.DeleteConfiguration("New"); !errors.Is(err, configuration.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if catalog.FindConfiguration("missing") != nil {
		t.Fatal("absent lookup must return nil")
	}
}

func TestInstallDefaultsIsIdempotent(t *testing.T) {
	catalog, _ := newCatalog(t)
	installedNames, err := catalog.InstallDefaults()
	if err != nil {
		t.Fatalf("InstallDefaults returned error: %v", err)
	}
	if diff := cmp.Diff(configuration.BuiltinNames(), installedNames, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("unexpected installed set:\n%s", diff)
	}
	again, err := catalog.InstallDefaults()
	if err != nil || len(again) != 0 {
		t.Fatalf("expected nothing installed the second time, got %v %v", again, err)
	}

	configs, failures := catalog.LoadAllConfigurations()
	if len(failures) != 0 || len(configs) != len(installedNames) {
		t.Fatalf("expected built-ins to reload cleanly, got %d configs %v", len(configs), failures)
	}
}

func TestNewFromLayersCopiesDefaults(t *testing.T) {
	manifests := []layer.Manifest{{
		Name:     "VK_LAYER_KHRONOS_validation",
		Path:     "/m.json",
		Settings: []layer.SettingSpec{{Key: "debug_action", Default: "log"}},
	}}
	defaults := layer.NewDefaultsCatalog(manifests)
	cfg := configuration.NewFromLayers("All", manifests, defaults)
	cfg.Layers[0].Settings = cfg.Layers[0].Settings.Set("debug_action", "break")

	fresh, _ := defaults.Lookup("VK_LAYER_KHRONOS_validation")
	if v, _ := fresh.Get("debug_action"); v != "log" {
		t.Fatalf("defaults catalog mutated through configuration, got %q", v)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := sampleConfiguration("Deep")
	clone := cfg.Clone()
	clone.Layers[0].Settings[0].Value = "changed"
	clone.RemoveLayer("VK_LAYER_LUNARG_api_dump")
	if cfg.Layers[0].Settings[0].Value == "changed" || len(cfg.Layers) != 3 {
		t.Fatal("clone shares state with original")
	}
	if clone.Layers[1].Rank != 1 {
		t.Fatalf("expected ranks renumbered, got %+v", clone.Layers)
	}
}
