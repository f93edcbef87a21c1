package layers

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dobrovols/vkconfig/internal/cli/output"
	"github.com/dobrovols/vkconfig/internal/cli/session"
	"github.com/dobrovols/vkconfig/pkg/discovery"
	"github.com/dobrovols/vkconfig/pkg/layer"
)

var titleCaser = cases.Title(language.English)

// ListOptions holds flags for `vkconfig layers list`.
type ListOptions struct {
	Output   string
	Shadowed bool
}

// NewLayersCommand constructs the `vkconfig layers` parent command.
func NewLayersCommand(global *session.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layers",
		Short: "Inspect installed Vulkan layers",
	}

	cmd.AddCommand(newListCommand(global))
	cmd.AddCommand(newWatchCommand(global))
	cmd.AddCommand(newPathCommand(global, "add-path", "Add a custom layer location", true))
	cmd.AddCommand(newPathCommand(global, "remove-path", "Remove a custom layer location", false))

	return cmd
}

func newListCommand(global *session.Options) *cobra.Command {
	opts := ListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered layers in precedence order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runList(cmd, opts, s)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Shadowed, "shadowed", false, "Also list manifests hidden by a higher-precedence layer of the same name")
	cmd.Flags().StringVar(&opts.Output, "output", output.Text, "Output format: text or json")
	return cmd
}

// RunListForTest executes the list flow against an open session.
func RunListForTest(cmd *cobra.Command, opts ListOptions, s *session.Session) error {
	return runList(cmd, opts, s)
}

type layerView struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	APIVersion  string `json:"apiVersion"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
	Shadowed    bool   `json:"shadowed,omitempty"`
}

type listPayload struct {
	Layers   []layerView `json:"layers"`
	Warnings []string    `json:"warnings,omitempty"`
}

func runList(cmd *cobra.Command, opts ListOptions, s *session.Session) error {
	result := s.FindAllInstalledLayers()
	payload := listPayload{Layers: make([]layerView, 0, len(result.Layers))}
	for _, m := range result.Layers {
		payload.Layers = append(payload.Layers, view(m, false))
	}
	if opts.Shadowed {
		for _, m := range result.Shadowed {
			payload.Layers = append(payload.Layers, view(m, true))
		}
	}
	for _, w := range result.Warnings {
		payload.Warnings = append(payload.Warnings, w.Error())
	}

	return output.Render(cmd.OutOrStdout(), opts.Output, payload, func(w io.Writer) error {
		if len(payload.Layers) == 0 {
			fmt.Fprintln(w, "No Vulkan layers found.")
		} else {
			tw := output.Table(w)
			fmt.Fprintln(tw, "NAME\tTYPE\tSOURCE\tAPI\tPATH")
			for _, l := range payload.Layers {
				name := l.Name
				if l.Shadowed {
					name += " (shadowed)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, l.Type, l.Source, l.APIVersion, l.Path)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		for _, warning := range payload.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
		return nil
	})
}

func view(m layer.Manifest, shadowed bool) layerView {
	return layerView{
		Name:        m.Name,
		Type:        titleCaser.String(string(m.Type)),
		Source:      m.Provenance.Rank.String(),
		APIVersion:  m.APIVersion,
		Description: m.Description,
		Path:        m.Path,
		Shadowed:    shadowed,
	}
}

func newWatchCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rescan whenever a layer manifest changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				return runWatch(ctx, cmd, s)
			})
		},
	}
}

// RunWatchForTest executes the watch flow until ctx is done.
func RunWatchForTest(ctx context.Context, cmd *cobra.Command, s *session.Session) error {
	return runWatch(ctx, cmd, s)
}

func runWatch(ctx context.Context, cmd *cobra.Command, s *session.Session) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching for layer changes (%d layers installed).\n", len(s.AvailableLayers()))
	err := s.Watch(ctx, func(result discovery.Result) {
		fmt.Fprintf(out, "Rescanned: %d layers, %d warnings.\n", len(result.Layers), len(result.Warnings))
		if err := s.RefreshConfiguration(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "refresh override: %v\n", err)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func newPathCommand(global *session.Options, use, short string, add bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <dir>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runPath(cmd, s, args[0], add)
			})
		},
	}
}

// RunPathForTest adds or removes a custom layer location.
func RunPathForTest(cmd *cobra.Command, s *session.Session, dir string, add bool) error {
	return runPath(cmd, s, dir, add)
}

func runPath(cmd *cobra.Command, s *session.Session, dir string, add bool) error {
	current := s.Preferences().CustomPaths
	next := make([]string, 0, len(current)+1)
	found := false
	for _, p := range current {
		if p == dir {
			found = true
			if !add {
				continue
			}
		}
		next = append(next, p)
	}
	switch {
	case add && found:
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already a custom layer location.\n", dir)
		return nil
	case add:
		next = append(next, dir)
	case !found:
		return fmt.Errorf("%s is not a custom layer location", dir)
	}

	s.SetCustomPaths(next)
	if err := s.RefreshConfiguration(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Custom layer locations: %d, layers found: %d.\n", len(next), len(s.AvailableLayers()))
	return nil
}
