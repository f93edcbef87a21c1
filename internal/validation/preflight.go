package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// AppListLoaderVersion is the first loader honoring the override app_keys.
var AppListLoaderVersion = Version{Major: 1, Minor: 2, Patch: 141}

// Version is a Vulkan loader version.
type Version struct {
	Major, Minor, Patch int
}

// ParseVersion parses "1.2.141", ignoring a trailing build suffix.
func ParseVersion(value string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(value), ".")
	if len(parts) < 2 || len(parts) > 4 {
		return Version{}, fmt.Errorf("invalid version %q", value)
	}
	nums := make([]int, 3)
	for i := 0; i < 3 && i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", value)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Less reports whether v precedes other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// SetupConfig captures what the override needs from the host.
type SetupConfig struct {
	LayerCount      int
	ApplyOnlyToList bool
	// ArtifactDirs are the directories override artifacts are written to.
	ArtifactDirs []string
}

// Result describes the outcome of the setup check.
type Result struct {
	Passed          bool
	Issues          []string
	Notes           []string
	LoaderVersion   string
	SupportsAppList bool
}

// Report renders the result for display.
func (r Result) Report() string {
	var b strings.Builder
	if r.LoaderVersion != "" {
		fmt.Fprintf(&b, "Vulkan loader version: %s\n", r.LoaderVersion)
	} else {
		b.WriteString("Vulkan loader version: unknown\n")
	}
	if r.Passed {
		b.WriteString("Setup check passed.\n")
	} else {
		b.WriteString("Setup check found problems:\n")
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(&b, "  - %s\n", issue)
	}
	for _, note := range r.Notes {
		fmt.Fprintf(&b, "  note: %s\n", note)
	}
	return b.String()
}

// overrideEnvironment lists variables that change which layers the loader
// enables regardless of the override.
var overrideEnvironment = []string{"VK_LAYER_PATH", "VK_INSTANCE_LAYERS", "VK_LOADER_LAYERS_ENABLE", "VK_LOADER_LAYERS_DISABLE"}

// CheckSetup inspects the Vulkan installation. Problems are reported, never
// returned as errors.
func CheckSetup(cfg SetupConfig, sys LoaderInspector) Result {
	if sys == nil {
		sys = DefaultInspector{}
	}

	result := Result{}
	if v, ok := sys.LoaderVersion(); ok {
		result.LoaderVersion = v.String()
		result.SupportsAppList = !v.Less(AppListLoaderVersion)
		if !result.SupportsAppList && cfg.ApplyOnlyToList {
			result.Issues = append(result.Issues, fmt.Sprintf("loader %s ignores the application list; %s or newer is required", v, AppListLoaderVersion))
		}
	} else {
		result.Issues = append(result.Issues, "Vulkan loader not found")
	}

	if cfg.LayerCount == 0 {
		result.Issues = append(result.Issues, "no Vulkan layers found")
	}

	for _, dir := range cfg.ArtifactDirs {
		if !sys.Writable(dir) {
			result.Issues = append(result.Issues, fmt.Sprintf("override directory not writable: %s", dir))
		}
	}

	for _, name := range overrideEnvironment {
		if v := sys.Getenv(name); v != "" {
			result.Notes = append(result.Notes, fmt.Sprintf("%s is set (%s) and may change the layers applications load", name, v))
		}
	}

	result.Passed = len(result.Issues) == 0
	return result
}

// LoaderInspector models host interrogation functions, allowing tests to stub.
type LoaderInspector interface {
	LoaderVersion() (Version, bool)
	Getenv(string) string
	Writable(dir string) bool
}

// DefaultInspector interrogates the running host.
type DefaultInspector struct{}

// loaderDirs are searched for the versioned loader library.
var loaderDirs = []string{
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
	"/usr/lib64",
	"/usr/lib",
	"/usr/local/lib",
}

// LoaderVersion reads the version from the loader's file name, for example
// libvulkan.so.1.3.275.
func (DefaultInspector) LoaderVersion() (Version, bool) {
	if runtime.GOOS != "linux" {
		return Version{}, false
	}
	var best Version
	found := false
	for _, dir := range loaderDirs {
		matches, _ := filepath.Glob(filepath.Join(dir, "libvulkan.so.1.*"))
		for _, match := range matches {
			v, err := ParseVersion(strings.TrimPrefix(filepath.Base(match), "libvulkan.so."))
			if err != nil {
				continue
			}
			if !found || best.Less(v) {
				best, found = v, true
			}
		}
	}
	return best, found
}

// Getenv reads the process environment.
func (DefaultInspector) Getenv(name string) string { return os.Getenv(name) }

// Writable reports whether a file can be created in dir, or in its closest
// existing parent when dir does not exist yet.
func (DefaultInspector) Writable(dir string) bool {
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return false
			}
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
	f, err := os.CreateTemp(dir, ".vkconfig-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
