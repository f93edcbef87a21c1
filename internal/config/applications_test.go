package config_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dobrovols/vkconfig/internal/config"
	"github.com/dobrovols/vkconfig/pkg/configurator"
)

func TestApplicationFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.ApplicationsFileName)
	file := config.NewApplicationFile(path)

	apps := []configurator.Application{
		{Name: "vkcube", Executable: "/usr/bin/vkcube", Arguments: `--c 100 --present_mode "2"`, OverrideEnabled: true},
		{Name: "demo", Executable: "/opt/demo/run", WorkingDir: "/opt/demo", LogFile: "/tmp/demo.log"},
	}
	if err := file.Save(apps); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := file.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if diff := cmp.Diff(apps, loaded); diff != "" {
		t.Fatalf("application list mismatch (-want +got):\n%s", diff)
	}
}

func TestApplicationFileMissingIsEmpty(t *testing.T) {
	apps, err := config.NewApplicationFile(filepath.Join(t.TempDir(), "none.yaml")).Load()
	if err != nil || len(apps) != 0 {
		t.Fatalf("expected empty list, got %v, %v", apps, err)
	}
}

func TestApplicationFileRejectsInvalidEntries(t *testing.T) {
	cases := map[string]struct {
		content string
		want    error
	}{
		"missing executable": {
			content: "version: 1\napplications:\n  - name: broken\n",
			want:    config.ErrInvalidApplicationList,
		},
		"duplicate": {
			content: "version: 1\napplications:\n  - executable: /bin/a\n  - executable: /bin/a\n",
			want:    config.ErrInvalidApplicationList,
		},
		"newer version": {
			content: "version: 9\napplications: []\n",
			want:    config.ErrUnsupportedVersion,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), config.ApplicationsFileName)
			mustWriteFile(t, path, tc.content)
			if _, err := config.NewApplicationFile(path).Load(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplicationFileRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.ApplicationsFileName)
	mustWriteFile(t, path, "version: 1\napplications:\n  - executable: /bin/a\n    env: FOO=1\n")

	_, err := config.NewApplicationFile(path).Load()
	if err == nil || !strings.Contains(err.Error(), "env") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestApplicationsPathSitsNextToPreferences(t *testing.T) {
	got := config.ApplicationsPath(filepath.Join("/home/vk/.config/vkconfig", config.PreferencesFileName))
	if got != filepath.Join("/home/vk/.config/vkconfig", config.ApplicationsFileName) {
		t.Fatalf("unexpected path %q", got)
	}
}
