package platform_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dobrovols/vkconfig/internal/platform"
	"github.com/dobrovols/vkconfig/pkg/layer"
)

func TestDefaultDirectorySystemHonorsXDG(t *testing.T) {
	env := map[string]string{
		"XDG_DATA_HOME":   "/data/home",
		"XDG_CONFIG_HOME": "/config/home",
		"XDG_DATA_DIRS":   "/opt/share" + string(os.PathListSeparator) + "/usr/share",
		"VK_LAYER_PATH":   "/layers/one" + string(os.PathListSeparator) + "/layers/two",
	}
	sys := platform.DefaultDirectorySystem(func(k string) string { return env[k] }, "/home/vk")

	if len(sys.LayerPath) != 2 || sys.LayerPath[0] != "/layers/one" {
		t.Fatalf("unexpected VK_LAYER_PATH split: %v", sys.LayerPath)
	}
	wantUser := []string{filepath.Join("/config/home", "vulkan"), filepath.Join("/data/home", "vulkan")}
	if len(sys.UserRoots) != 2 || sys.UserRoots[0] != wantUser[0] || sys.UserRoots[1] != wantUser[1] {
		t.Fatalf("unexpected user roots: %v", sys.UserRoots)
	}
	found := false
	for _, root := range sys.SystemRoots {
		if root == filepath.Join("/opt/share", "vulkan") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected XDG_DATA_DIRS root in %v", sys.SystemRoots)
	}
}

func TestDefaultDirectorySystemFallsBackToHome(t *testing.T) {
	sys := platform.DefaultDirectorySystem(func(string) string { return "" }, "/home/vk")
	want := filepath.Join("/home/vk", ".local", "share", "vulkan")
	if sys.UserRoots[len(sys.UserRoots)-1] != want {
		t.Fatalf("expected %q in user roots, got %v", want, sys.UserRoots)
	}
}

func TestLayerLocationsOrderedByRank(t *testing.T) {
	sys := &platform.DirectorySystem{
		LayerPath:   []string{"/env"},
		UserRoots:   []string{"/user"},
		SystemRoots: []string{"/system"},
	}
	locations, err := sys.LayerLocations()
	if err != nil {
		t.Fatalf("LayerLocations returned error: %v", err)
	}
	if len(locations) != 5 {
		t.Fatalf("expected 5 locations, got %d", len(locations))
	}
	last := layer.RankCustom
	for _, loc := range locations {
		if loc.Rank < last {
			t.Fatalf("locations out of rank order: %+v", locations)
		}
		last = loc.Rank
	}
	if locations[1].Type != layer.TypeExplicit || locations[2].Type != layer.TypeImplicit {
		t.Fatalf("expected explicit before implicit: %+v", locations)
	}
}

func TestListManifestsFiltersJSON(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.JSON", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sys := &platform.DirectorySystem{}
	got, err := sys.ListManifests(dir)
	if err != nil {
		t.Fatalf("ListManifests returned error: %v", err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "a.JSON" || filepath.Base(got[1]) != "b.json" {
		t.Fatalf("unexpected manifests: %v", got)
	}
}

func TestDirectorySystemCannotPublish(t *testing.T) {
	sys := &platform.DirectorySystem{}
	if pubs := sys.OverridePublications("a", "b"); pubs != nil {
		t.Fatalf("expected no publications, got %v", pubs)
	}
	if err := sys.Publish(platform.Publication{}); !errors.Is(err, platform.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
