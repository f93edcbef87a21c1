package configs_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	configscmd "github.com/dobrovols/vkconfig/cmd/vkconfig/configs"
	"github.com/dobrovols/vkconfig/internal/cli/session/sessiontest"
	"github.com/dobrovols/vkconfig/pkg/configuration"
)

func newCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	return cmd, &out
}

func TestConfigsList_IncludesBuiltins(t *testing.T) {
	env := sessiontest.Isolate(t, "VK_LAYER_KHRONOS_validation")
	s := env.Open(t)
	cmd, out := newCommand()

	if err := configscmd.RunListForTest(cmd, "text", s); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range configuration.BuiltinNames() {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("expected built-in %q in %s", name, out.String())
		}
	}
}

func TestConfigsCreateAndShow(t *testing.T) {
	env := sessiontest.Isolate(t, "VK_LAYER_KHRONOS_validation", "VK_LAYER_LUNARG_api_dump")
	s := env.Open(t)
	cmd, out := newCommand()

	opts := configscmd.CreateOptions{
		Layers:      []string{"VK_LAYER_LUNARG_api_dump", "VK_LAYER_KHRONOS_validation"},
		Description: "dump then validate",
		Activate:    true,
	}
	if err := configscmd.RunCreateForTest(cmd, opts, s, "Debug"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if active := s.ActiveConfiguration(); active == nil || active.Name != "Debug" {
		t.Fatalf("expected Debug to be active, got %+v", active)
	}

	out.Reset()
	if err := configscmd.RunShowForTest(cmd, "text", s, "Debug"); err != nil {
		t.Fatalf("show: %v", err)
	}
	text := out.String()
	dump := strings.Index(text, "0. VK_LAYER_LUNARG_api_dump (enabled)")
	validation := strings.Index(text, "1. VK_LAYER_KHRONOS_validation (enabled)")
	if dump < 0 || validation < dump {
		t.Fatalf("expected ordered stack, got %s", text)
	}
	if !strings.Contains(text, "level = default") {
		t.Fatalf("expected default settings, got %s", text)
	}

	if err := configscmd.RunCreateForTest(cmd, configscmd.CreateOptions{}, s, "Debug"); !errors.Is(err, configuration.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestConfigsCreateUnknownLayer(t *testing.T) {
	env := sessiontest.Isolate(t)
	s := env.Open(t)
	cmd, _ := newCommand()

	err := configscmd.RunCreateForTest(cmd, configscmd.CreateOptions{Layers: []string{"VK_LAYER_missing"}}, s, "Broken")
	if err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Fatalf("expected not installed error, got %v", err)
	}
	if s.FindConfiguration("Broken") != nil {
		t.Fatalf("failed create must not store a configuration")
	}
}

func TestConfigsEdit(t *testing.T) {
	env := sessiontest.Isolate(t, "VK_LAYER_KHRONOS_validation", "VK_LAYER_LUNARG_api_dump")
	s := env.Open(t)
	cmd, _ := newCommand()

	if err := configscmd.RunCreateForTest(cmd, configscmd.CreateOptions{Layers: []string{"VK_LAYER_KHRONOS_validation"}}, s, "Edited"); err != nil {
		t.Fatalf("create: %v", err)
	}

	edit := configscmd.EditOptions{Layer: "VK_LAYER_KHRONOS_validation", Settings: []string{"level=verbose"}}
	if err := configscmd.RunEditForTest(cmd, edit, s, "Edited"); err != nil {
		t.Fatalf("edit settings: %v", err)
	}
	edit = configscmd.EditOptions{Layer: "VK_LAYER_LUNARG_api_dump", State: "forced-off"}
	if err := configscmd.RunEditForTest(cmd, edit, s, "Edited"); err != nil {
		t.Fatalf("add layer: %v", err)
	}

	cfg := s.FindConfiguration("Edited")
	validation := cfg.Layer("VK_LAYER_KHRONOS_validation")
	if value, _ := validation.Settings.Get("level"); value != "verbose" {
		t.Fatalf("expected level=verbose, got %q", value)
	}
	dump := cfg.Layer("VK_LAYER_LUNARG_api_dump")
	if dump == nil || dump.State != configuration.StateForcedOff || dump.Rank != 1 {
		t.Fatalf("unexpected api_dump reference %+v", dump)
	}
	if value, ok := dump.Settings.Get("level"); !ok || value != "default" {
		t.Fatalf("expected defaults for added layer, got %q", value)
	}

	if err := configscmd.RunEditForTest(cmd, configscmd.EditOptions{Layer: "VK_LAYER_LUNARG_api_dump", Remove: true}, s, "Edited"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.FindConfiguration("Edited").Layer("VK_LAYER_LUNARG_api_dump") != nil {
		t.Fatalf("expected api_dump removed")
	}
}

func TestConfigsEditRejectsBadInput(t *testing.T) {
	env := sessiontest.Isolate(t, "VK_LAYER_KHRONOS_validation")
	s := env.Open(t)
	cmd, _ := newCommand()
	if err := configscmd.RunCreateForTest(cmd, configscmd.CreateOptions{Layers: []string{"VK_LAYER_KHRONOS_validation"}}, s, "Strict"); err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		name string
		opts configscmd.EditOptions
	}{
		{name: "missing layer", opts: configscmd.EditOptions{State: "disabled"}},
		{name: "bad state", opts: configscmd.EditOptions{Layer: "VK_LAYER_KHRONOS_validation", State: "sometimes"}},
		{name: "bad setting", opts: configscmd.EditOptions{Layer: "VK_LAYER_KHRONOS_validation", Settings: []string{"novalue"}}},
		{name: "remove absent", opts: configscmd.EditOptions{Layer: "VK_LAYER_other", Remove: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := configscmd.RunEditForTest(cmd, tc.opts, s, "Strict"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	err := configscmd.RunEditForTest(cmd, configscmd.EditOptions{Layer: "x"}, s, "Nope")
	if !errors.Is(err, configuration.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfigsShowJSON(t *testing.T) {
	env := sessiontest.Isolate(t, "VK_LAYER_KHRONOS_validation")
	s := env.Open(t)
	cmd, out := newCommand()

	if err := configscmd.RunShowForTest(cmd, "json", s, "Validation - Standard"); err != nil {
		t.Fatalf("show: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, `"name": "Validation - Standard"`) || !strings.Contains(text, `"usable": true`) {
		t.Fatalf("unexpected json %s", text)
	}
}

func TestNewConfigsCommandRegistersSubcommands(t *testing.T) {
	cmd := configscmd.NewConfigsCommand(nil)
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, expected := range []string{"list", "show", "create", "edit", "import", "export", "delete", "rename"} {
		if !names[expected] {
			t.Fatalf("expected subcommand %s", expected)
		}
	}
}
