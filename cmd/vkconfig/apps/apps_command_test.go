package apps_test

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	appscmd "github.com/dobrovols/vkconfig/cmd/vkconfig/apps"
	"github.com/dobrovols/vkconfig/internal/cli/session"
	"github.com/dobrovols/vkconfig/internal/cli/session/sessiontest"
	"github.com/dobrovols/vkconfig/pkg/configurator"
)

func newCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestAppsAddListRemove(t *testing.T) {
	env := sessiontest.Isolate(t)
	s := env.Open(t)
	cmd, out, _ := newCommand()

	if err := appscmd.RunAddForTest(cmd, appscmd.AddOptions{Arguments: "--fullscreen", Override: true}, s, "/opt/games/vkcube"); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := appscmd.RunAddForTest(cmd, appscmd.AddOptions{}, s, "/opt/games/vkcube")
	if !errors.Is(err, configurator.ErrApplicationExists) {
		t.Fatalf("expected ErrApplicationExists, got %v", err)
	}

	out.Reset()
	if err := appscmd.RunListForTest(cmd, "text", s); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "vkcube") || !strings.Contains(out.String(), "--fullscreen") {
		t.Fatalf("unexpected list %s", out.String())
	}

	if err := s.RemoveApplication("/opt/games/vkcube"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out.Reset()
	if err := appscmd.RunListForTest(cmd, "json", s); err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Fatalf("expected empty json list, got %q", out.String())
	}
}

func TestAppsLaunchUsesLastApplication(t *testing.T) {
	requireShell(t)
	env := sessiontest.Isolate(t, "VK_LAYER_KHRONOS_validation")
	s := env.Open(t)
	cmd, out, errOut := newCommand()

	if err := appscmd.RunLaunchForTest(cmd, appscmd.LaunchOptions{}, s, ""); !errors.Is(err, appscmd.ErrNoApplication) {
		t.Fatalf("expected ErrNoApplication, got %v", err)
	}

	if err := appscmd.RunAddForTest(cmd, appscmd.AddOptions{Arguments: `-c "echo launched"`}, s, "/bin/sh"); err != nil {
		t.Fatalf("add: %v", err)
	}
	opts := appscmd.LaunchOptions{Configuration: "Validation - Standard"}
	if err := appscmd.RunLaunchForTest(cmd, opts, s, "/bin/sh"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !strings.Contains(out.String(), "launched") {
		t.Fatalf("expected program output, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "sh.log") {
		t.Fatalf("expected log notice, got %q", errOut.String())
	}
	if s.ActiveConfiguration() != nil {
		t.Fatalf("pushed configuration must be popped after the run")
	}

	out.Reset()
	if err := appscmd.RunLaunchForTest(cmd, appscmd.LaunchOptions{Quiet: true}, s, ""); err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("quiet launch must not echo output, got %q", out.String())
	}
}

func TestAppsLaunchPassesExitCode(t *testing.T) {
	requireShell(t)
	env := sessiontest.Isolate(t)
	s := env.Open(t)
	cmd, _, _ := newCommand()

	opts := appscmd.LaunchOptions{AddOptions: appscmd.AddOptions{Arguments: `-c "exit 3"`}, Quiet: true}
	err := appscmd.RunLaunchForTest(cmd, opts, s, "/bin/sh")
	var exitErr *session.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("expected exit code 3, got %v", err)
	}
}

func TestAppsLaunchUnknownConfiguration(t *testing.T) {
	env := sessiontest.Isolate(t)
	s := env.Open(t)
	cmd, _, _ := newCommand()

	err := appscmd.RunLaunchForTest(cmd, appscmd.LaunchOptions{Configuration: "Missing"}, s, "/bin/true")
	if err == nil || !strings.Contains(err.Error(), "Missing") {
		t.Fatalf("expected missing configuration error, got %v", err)
	}
}
