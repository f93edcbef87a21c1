package validation_test

import (
	"strings"
	"testing"

	"github.com/dobrovols/vkconfig/internal/validation"
)

type fakeInspector struct {
	version  *validation.Version
	env      map[string]string
	writable map[string]bool
}

func (f fakeInspector) LoaderVersion() (validation.Version, bool) {
	if f.version == nil {
		return validation.Version{}, false
	}
	return *f.version, true
}
func (f fakeInspector) Getenv(name string) string { return f.env[name] }
func (f fakeInspector) Writable(dir string) bool  { return f.writable[dir] }

func TestCheckSetupSuccess(t *testing.T) {
	inspector := fakeInspector{
		version:  &validation.Version{Major: 1, Minor: 3, Patch: 275},
		writable: map[string]bool{"/home/u/.local/share/vulkan/settings.d": true},
	}

	result := validation.CheckSetup(validation.SetupConfig{
		LayerCount:      3,
		ApplyOnlyToList: true,
		ArtifactDirs:    []string{"/home/u/.local/share/vulkan/settings.d"},
	}, inspector)

	if !result.Passed {
		t.Fatalf("expected setup check to pass: %#v", result.Issues)
	}
	if !result.SupportsAppList || result.LoaderVersion != "1.3.275" {
		t.Fatalf("unexpected loader details: %+v", result)
	}
	if !strings.Contains(result.Report(), "Setup check passed.") {
		t.Fatalf("unexpected report:\n%s", result.Report())
	}
}

func TestCheckSetupAggregatesIssues(t *testing.T) {
	inspector := fakeInspector{
		version: &validation.Version{Major: 1, Minor: 2, Patch: 135},
		env:     map[string]string{"VK_INSTANCE_LAYERS": "VK_LAYER_KHRONOS_validation"},
	}

	result := validation.CheckSetup(validation.SetupConfig{
		ApplyOnlyToList: true,
		ArtifactDirs:    []string{"/readonly"},
	}, inspector)

	if result.Passed {
		t.Fatalf("expected setup check to fail")
	}
	expectedIssues := []string{
		"loader 1.2.135 ignores the application list; 1.2.141 or newer is required",
		"no Vulkan layers found",
		"override directory not writable: /readonly",
	}
	for _, expected := range expectedIssues {
		found := false
		for _, actual := range result.Issues {
			if actual == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected issue %q not found in actual issues: %v", expected, result.Issues)
		}
	}
	if len(result.Notes) != 1 || !strings.Contains(result.Notes[0], "VK_INSTANCE_LAYERS") {
		t.Fatalf("expected environment note, got %v", result.Notes)
	}
	report := result.Report()
	if !strings.Contains(report, "problems") || !strings.Contains(report, "note: VK_INSTANCE_LAYERS") {
		t.Fatalf("unexpected report:\n%s", report)
	}
}

func TestCheckSetupMissingLoader(t *testing.T) {
	result := validation.CheckSetup(validation.SetupConfig{LayerCount: 1}, fakeInspector{})
	if result.Passed || result.Issues[0] != "Vulkan loader not found" {
		t.Fatalf("expected missing loader issue, got %+v", result)
	}
	if !strings.Contains(result.Report(), "unknown") {
		t.Fatalf("expected unknown version in report")
	}
}

func TestParseVersion(t *testing.T) {
	cases := map[string]validation.Version{
		"1.2.141":   {Major: 1, Minor: 2, Patch: 141},
		"1.3":       {Major: 1, Minor: 3},
		"1.3.275.0": {Major: 1, Minor: 3, Patch: 275},
	}
	for in, want := range cases {
		got, err := validation.ParseVersion(in)
		if err != nil || got != want {
			t.Fatalf("ParseVersion(%q) = %v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "1", "a.b.c", "1.-2.0"} {
		if _, err := validation.ParseVersion(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if !(validation.Version{Major: 1, Minor: 2, Patch: 135}).Less(validation.AppListLoaderVersion) {
		t.Fatal("expected 1.2.135 to precede 1.2.141")
	}
}
