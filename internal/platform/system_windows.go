//go:build windows

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows/registry"

	"github.com/dobrovols/vkconfig/pkg/layer"
	"github.com/dobrovols/vkconfig/pkg/state"
)

const (
	rootCurrentUser  = "HKCU"
	rootLocalMachine = "HKLM"

	khronosKey       = `SOFTWARE\Khronos\Vulkan`
	explicitLayerKey = khronosKey + `\ExplicitLayers`
	implicitLayerKey = khronosKey + `\ImplicitLayers`
	settingsKey      = khronosKey + `\Settings`

	// Display adapter device class.
	displayClassKey = `SYSTEM\CurrentControlSet\Control\Class\{4d36e968-e325-11ce-bfc1-08002be10318}`
)

// NewSystem returns the host implementation.
func NewSystem() System {
	return &registrySystem{}
}

// OverrideDirectories returns the per-user directory holding both override
// artifacts. The loader finds them through the published registry values.
func OverrideDirectories(getenv func(string) string, home string) (settings, manifests string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	base := getenv("LOCALAPPDATA")
	if base == "" {
		base = filepath.Join(home, "AppData", "Local")
	}
	dir := filepath.Join(base, "LunarG", "vkconfig", "override")
	return dir, dir
}

type registrySystem struct {
	files
}

var _ System = (*registrySystem)(nil)

func rootKey(name string) (registry.Key, error) {
	switch name {
	case rootCurrentUser:
		return registry.CURRENT_USER, nil
	case rootLocalMachine:
		return registry.LOCAL_MACHINE, nil
	default:
		return 0, fmt.Errorf("unknown registry root %q", name)
	}
}

func (r *registrySystem) LayerLocations() ([]Location, error) {
	var out []Location
	out = append(out, r.keyLocations(rootCurrentUser, explicitLayerKey, layer.TypeExplicit, layer.RankUser)...)
	out = append(out, r.keyLocations(rootCurrentUser, implicitLayerKey, layer.TypeImplicit, layer.RankUser)...)
	out = append(out, r.keyLocations(rootLocalMachine, explicitLayerKey, layer.TypeExplicit, layer.RankSystem)...)
	out = append(out, r.keyLocations(rootLocalMachine, implicitLayerKey, layer.TypeImplicit, layer.RankSystem)...)
	out = append(out, r.deviceLocations("VulkanExplicitLayers", layer.TypeExplicit)...)
	out = append(out, r.deviceLocations("VulkanImplicitLayers", layer.TypeImplicit)...)
	return out, nil
}

// keyLocations reads a Khronos layer key. Each value name is a manifest path;
// a non-zero DWORD disables the entry.
func (r *registrySystem) keyLocations(root, path string, typ layer.Type, rank layer.Rank) []Location {
	base, err := rootKey(root)
	if err != nil {
		return nil
	}
	key, err := registry.OpenKey(base, path, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return nil
	}
	defer key.Close()

	names, err := key.ReadValueNames(0)
	if err != nil {
		return nil
	}
	origin := root + `\` + path
	out := make([]Location, 0, len(names))
	for _, name := range names {
		if v, _, err := key.GetIntegerValue(name); err == nil && v != 0 {
			continue
		}
		out = append(out, Location{Path: name, File: true, Type: typ, Rank: rank, Origin: origin})
	}
	return out
}

// deviceLocations walks the display adapter instances, which drivers use to
// register per-device layers.
func (r *registrySystem) deviceLocations(valueName string, typ layer.Type) []Location {
	class, err := registry.OpenKey(registry.LOCAL_MACHINE, displayClassKey, registry.ENUMERATE_SUB_KEYS|registry.WOW64_64KEY)
	if err != nil {
		return nil
	}
	defer class.Close()

	subkeys, err := class.ReadSubKeyNames(0)
	if err != nil {
		return nil
	}
	var out []Location
	for _, sub := range subkeys {
		device, err := registry.OpenKey(class, sub, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		origin := rootLocalMachine + `\` + displayClassKey + `\` + sub
		for _, manifest := range readStrings(device, valueName) {
			out = append(out, Location{Path: manifest, File: true, Type: typ, Rank: layer.RankSystem, Origin: origin})
		}
		device.Close()
	}
	return out
}

func readStrings(key registry.Key, name string) []string {
	if values, _, err := key.GetStringsValue(name); err == nil {
		return values
	}
	if value, _, err := key.GetStringValue(name); err == nil && strings.TrimSpace(value) != "" {
		return []string{value}
	}
	return nil
}

func (r *registrySystem) OverridePublications(jsonPath, settingsPath string) []Publication {
	return []Publication{
		{Root: rootCurrentUser, Key: implicitLayerKey, Name: jsonPath},
		{Root: rootCurrentUser, Key: settingsKey, Name: settingsPath},
	}
}

func (r *registrySystem) Lookup(p Publication) (*state.RegistryData, error) {
	base, err := rootKey(p.Root)
	if err != nil {
		return nil, err
	}
	key, err := registry.OpenKey(base, p.Key, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer key.Close()
	size, typ, err := key.GetValue(p.Name, nil)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	data := &state.RegistryData{Type: typ}
	switch typ {
	case registry.DWORD, registry.QWORD:
		data.Integer, _, err = key.GetIntegerValue(p.Name)
	case registry.SZ, registry.EXPAND_SZ:
		var value string
		value, _, err = key.GetStringValue(p.Name)
		data.Strings = []string{value}
	case registry.MULTI_SZ:
		data.Strings, _, err = key.GetStringsValue(p.Name)
	default:
		data.Data = make([]byte, size)
		_, _, err = key.GetValue(p.Name, data.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func (r *registrySystem) Publish(p Publication) error {
	base, err := rootKey(p.Root)
	if err != nil {
		return err
	}
	key, _, err := registry.CreateKey(base, p.Key, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.Key, err)
	}
	defer key.Close()
	return key.SetDWordValue(p.Name, 0)
}

// Restore writes prior back with its original type. Types other than
// integers and strings come back as REG_BINARY.
func (r *registrySystem) Restore(p Publication, prior state.RegistryData) error {
	base, err := rootKey(p.Root)
	if err != nil {
		return err
	}
	key, _, err := registry.CreateKey(base, p.Key, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.Key, err)
	}
	defer key.Close()

	first := ""
	if len(prior.Strings) > 0 {
		first = prior.Strings[0]
	}
	switch prior.Type {
	case registry.DWORD:
		return key.SetDWordValue(p.Name, uint32(prior.Integer))
	case registry.QWORD:
		return key.SetQWordValue(p.Name, prior.Integer)
	case registry.SZ:
		return key.SetStringValue(p.Name, first)
	case registry.EXPAND_SZ:
		return key.SetExpandStringValue(p.Name, first)
	case registry.MULTI_SZ:
		return key.SetStringsValue(p.Name, prior.Strings)
	default:
		return key.SetBinaryValue(p.Name, prior.Data)
	}
}

func (r *registrySystem) Withdraw(p Publication) error {
	base, err := rootKey(p.Root)
	if err != nil {
		return err
	}
	key, err := registry.OpenKey(base, p.Key, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", p.Key, err)
	}
	defer key.Close()
	if err := key.DeleteValue(p.Name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return err
	}
	return nil
}
