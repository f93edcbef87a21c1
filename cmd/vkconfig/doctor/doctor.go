package doctor

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dobrovols/vkconfig/internal/cli/logging"
	"github.com/dobrovols/vkconfig/internal/cli/output"
	"github.com/dobrovols/vkconfig/internal/cli/session"
)

var envPrefixes = []string{"VK_", "VKCONFIG_", "XDG_"}

// Options holds flags for `vkconfig doctor`.
type Options struct {
	Output string
	Env    bool
	// Environ defaults to os.Environ.
	Environ func() []string
}

type report struct {
	Setup       string            `json:"setup"`
	Warnings    []string          `json:"warnings,omitempty"`
	Skipped     []string          `json:"skippedConfigurations,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// NewDoctorCommand constructs `vkconfig doctor`.
func NewDoctorCommand(global *session.Options) *cobra.Command {
	opts := Options{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the Vulkan loader setup and report layer problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return run(cmd, opts, s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Output, "output", output.Text, "Output format: text or json")
	cmd.Flags().BoolVar(&opts.Env, "env", false, "Include loader related environment variables")
	return cmd
}

// RunForTest executes the doctor flow against an open session.
func RunForTest(cmd *cobra.Command, opts Options, s *session.Session) error {
	return run(cmd, opts, s)
}

func run(cmd *cobra.Command, opts Options, s *session.Session) error {
	r := report{Setup: s.CheckVulkanSetup()}
	for _, w := range s.Warnings() {
		r.Warnings = append(r.Warnings, w.Error())
	}
	for _, failure := range s.LoadErrors() {
		r.Skipped = append(r.Skipped, failure.Error())
	}
	if opts.Env {
		environ := opts.Environ
		if environ == nil {
			environ = os.Environ
		}
		r.Environment = logging.SanitizeEnv(loaderEnv(environ()))
	}

	return output.Render(cmd.OutOrStdout(), opts.Output, r, func(w io.Writer) error {
		fmt.Fprintln(w, strings.TrimRight(r.Setup, "\n"))
		section(w, "Layer warnings", r.Warnings)
		section(w, "Skipped configurations", r.Skipped)
		if opts.Env {
			keys := make([]string, 0, len(r.Environment))
			for key := range r.Environment {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			lines := make([]string, 0, len(keys))
			for _, key := range keys {
				lines = append(lines, key+"="+r.Environment[key])
			}
			section(w, "Environment", lines)
		}
		return nil
	})
}

func section(w io.Writer, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func loaderEnv(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, prefix := range envPrefixes {
			if strings.HasPrefix(key, prefix) {
				out[key] = value
				break
			}
		}
	}
	return out
}
