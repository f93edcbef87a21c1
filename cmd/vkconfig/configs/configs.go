package configs

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dobrovols/vkconfig/internal/cli/output"
	"github.com/dobrovols/vkconfig/internal/cli/session"
	"github.com/dobrovols/vkconfig/pkg/configuration"
)

// NewConfigsCommand constructs the `vkconfig configs` parent command.
func NewConfigsCommand(global *session.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "configs",
		Aliases: []string{"config"},
		Short:   "Manage layer configurations",
	}

	cmd.AddCommand(newListCommand(global))
	cmd.AddCommand(newShowCommand(global))
	cmd.AddCommand(newCreateCommand(global))
	cmd.AddCommand(newEditCommand(global))
	cmd.AddCommand(newImportCommand(global))
	cmd.AddCommand(newExportCommand(global))
	cmd.AddCommand(newDeleteCommand(global))
	cmd.AddCommand(newRenameCommand(global))

	return cmd
}

type summary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Layers      int    `json:"layers"`
	Active      bool   `json:"active"`
	Path        string `json:"path"`
}

type listPayload struct {
	Configurations []summary `json:"configurations"`
	Errors         []string  `json:"errors,omitempty"`
}

func newListCommand(global *session.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runList(cmd, format, s)
			})
		},
	}
	cmd.Flags().StringVar(&format, "output", output.Text, "Output format: text or json")
	return cmd
}

// RunListForTest executes the list flow against an open session.
func RunListForTest(cmd *cobra.Command, format string, s *session.Session) error {
	return runList(cmd, format, s)
}

func runList(cmd *cobra.Command, format string, s *session.Session) error {
	activeName := ""
	if active := s.ActiveConfiguration(); active != nil {
		activeName = active.Name
	}
	payload := listPayload{}
	for _, cfg := range s.Configurations() {
		payload.Configurations = append(payload.Configurations, summary{
			Name:        cfg.Name,
			Description: cfg.Description,
			Layers:      len(cfg.Layers),
			Active:      cfg.Name == activeName,
			Path:        cfg.Path,
		})
	}
	for _, failure := range s.LoadErrors() {
		payload.Errors = append(payload.Errors, failure.Error())
	}

	return output.Render(cmd.OutOrStdout(), format, payload, func(w io.Writer) error {
		tw := output.Table(w)
		fmt.Fprintln(tw, "\tNAME\tLAYERS\tDESCRIPTION")
		for _, c := range payload.Configurations {
			marker := ""
			if c.Active {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", marker, c.Name, c.Layers, c.Description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, e := range payload.Errors {
			fmt.Fprintf(w, "skipped: %s\n", e)
		}
		return nil
	})
}

type layerDetail struct {
	Name     string            `json:"name"`
	Rank     int               `json:"rank"`
	State    string            `json:"state"`
	Usable   bool              `json:"usable"`
	Settings map[string]string `json:"settings,omitempty"`
	keys     []string
}

type detail struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Path        string        `json:"path,omitempty"`
	Layers      []layerDetail `json:"layers"`
}

func newShowCommand(global *session.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the layers and settings of a configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runShow(cmd, format, s, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&format, "output", output.Text, "Output format: text or json")
	return cmd
}

// RunShowForTest executes the show flow against an open session.
func RunShowForTest(cmd *cobra.Command, format string, s *session.Session, name string) error {
	return runShow(cmd, format, s, name)
}

func runShow(cmd *cobra.Command, format string, s *session.Session, name string) error {
	stored, err := find(s, name)
	if err != nil {
		return err
	}
	cfg := stored.Clone()
	cfg.Resolve(s)
	d := detail{Name: cfg.Name, Description: cfg.Description, Path: cfg.Path, Layers: []layerDetail{}}
	for _, ref := range cfg.Layers {
		ld := layerDetail{Name: ref.Name, Rank: ref.Rank, State: string(ref.State), Usable: ref.Usable}
		if len(ref.Settings) > 0 {
			ld.Settings = make(map[string]string, len(ref.Settings))
			for _, setting := range ref.Settings {
				ld.Settings[setting.Key] = setting.Value
				ld.keys = append(ld.keys, setting.Key)
			}
		}
		d.Layers = append(d.Layers, ld)
	}

	return output.Render(cmd.OutOrStdout(), format, d, func(w io.Writer) error {
		fmt.Fprintf(w, "Configuration: %s\n", d.Name)
		if d.Description != "" {
			fmt.Fprintf(w, "Description: %s\n", d.Description)
		}
		for _, l := range d.Layers {
			status := l.State
			if !l.Usable {
				status += ", not installed"
			}
			fmt.Fprintf(w, "%d. %s (%s)\n", l.Rank, l.Name, status)
			for _, key := range l.keys {
				fmt.Fprintf(w, "     %s = %s\n", key, l.Settings[key])
			}
		}
		return nil
	})
}

// CreateOptions holds flags for `vkconfig configs create`.
type CreateOptions struct {
	Layers      []string
	Description string
	Activate    bool
}

func newCreateCommand(global *session.Options) *cobra.Command {
	opts := CreateOptions{}
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a configuration from installed layers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runCreate(cmd, opts, s, args[0])
			})
		},
	}
	cmd.Flags().StringSliceVar(&opts.Layers, "layer", nil, "Layer to enable with its default settings; repeat to stack in order")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Configuration description")
	cmd.Flags().BoolVar(&opts.Activate, "activate", false, "Activate the configuration after saving it")
	return cmd
}

// RunCreateForTest executes the create flow against an open session.
func RunCreateForTest(cmd *cobra.Command, opts CreateOptions, s *session.Session, name string) error {
	return runCreate(cmd, opts, s, name)
}

func runCreate(cmd *cobra.Command, opts CreateOptions, s *session.Session, name string) error {
	if s.FindConfiguration(name) != nil {
		return fmt.Errorf("%w: %q", configuration.ErrExists, name)
	}
	var cfg *configuration.Configuration
	if len(opts.Layers) == 0 {
		cfg = s.CreateEmptyConfiguration()
		cfg.Name = name
	} else {
		var err error
		cfg, err = s.CreateConfigurationFromLayers(name, opts.Layers)
		if err != nil {
			return err
		}
	}
	cfg.Description = opts.Description
	if err := s.SaveConfiguration(cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration %q to %s\n", cfg.Name, cfg.Path)
	if opts.Activate {
		if err := s.SetActiveConfiguration(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Override active: %s\n", cfg.Name)
	}
	return nil
}

// EditOptions holds flags for `vkconfig configs edit`.
type EditOptions struct {
	Layer       string
	State       string
	Settings    []string
	Remove      bool
	Description string
}

// ErrLayerRequired is returned when a layer edit names no layer.
var ErrLayerRequired = errors.New("--layer is required")

func newEditCommand(global *session.Options) *cobra.Command {
	opts := EditOptions{}
	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Change a layer's state or settings in a configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runEdit(cmd, opts, s, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&opts.Layer, "layer", "", "Layer to change; added with its defaults when missing")
	cmd.Flags().StringVar(&opts.State, "state", "", "Layer state: enabled, disabled or forced-off")
	cmd.Flags().StringArrayVar(&opts.Settings, "set", nil, "Layer setting as key=value; repeatable")
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "Remove the layer from the configuration")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Replace the configuration description")
	return cmd
}

// RunEditForTest executes the edit flow against an open session.
func RunEditForTest(cmd *cobra.Command, opts EditOptions, s *session.Session, name string) error {
	return runEdit(cmd, opts, s, name)
}

func runEdit(cmd *cobra.Command, opts EditOptions, s *session.Session, name string) error {
	stored, err := find(s, name)
	if err != nil {
		return err
	}
	cfg := stored.Clone()
	if opts.Description != "" {
		cfg.Description = opts.Description
	}

	if strings.TrimSpace(opts.Layer) == "" {
		if opts.State != "" || len(opts.Settings) > 0 || opts.Remove {
			return ErrLayerRequired
		}
	} else if opts.Remove {
		if !cfg.RemoveLayer(opts.Layer) {
			return fmt.Errorf("layer %q is not part of %q", opts.Layer, cfg.Name)
		}
	} else if err := editLayer(s, cfg, opts); err != nil {
		return err
	}

	if err := s.SaveConfiguration(cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated configuration %q\n", cfg.Name)
	return nil
}

func editLayer(s *session.Session, cfg *configuration.Configuration, opts EditOptions) error {
	ref := configuration.LayerRef{Name: opts.Layer, State: configuration.StateEnabled}
	if existing := cfg.Layer(opts.Layer); existing != nil {
		ref = *existing
		ref.Settings = existing.Settings.Clone()
	} else if defaults, ok := s.LayerDefaults(opts.Layer); ok {
		ref.Settings = defaults
	}
	if opts.State != "" {
		state, err := configuration.ParseState(opts.State)
		if err != nil {
			return err
		}
		ref.State = state
	}
	for _, pair := range opts.Settings {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("invalid setting %q: expected key=value", pair)
		}
		ref.Settings = ref.Settings.Set(strings.TrimSpace(key), value)
	}
	cfg.SetLayer(ref)
	return nil
}

func newImportCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Copy a configuration descriptor into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				cfg, err := s.ImportConfiguration(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported configuration %q\n", cfg.Name)
				return nil
			})
		},
	}
}

func newExportCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <name> [destination]",
		Short: "Write a configuration descriptor outside the store",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}
			return session.Run(cmd, global, func(s *session.Session) error {
				written, err := s.ExportConfiguration(args[0], dest)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %q to %s\n", args[0], written)
				return nil
			})
		},
	}
}

func newDeleteCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				if err := s.DeleteConfiguration(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted configuration %q\n", args[0])
				return nil
			})
		},
	}
}

func newRenameCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a stored configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				renamed, err := s.RenameConfiguration(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", args[0], renamed.Name)
				return nil
			})
		},
	}
}

func find(s *session.Session, name string) (*configuration.Configuration, error) {
	cfg := s.FindConfiguration(name)
	if cfg == nil {
		return nil, fmt.Errorf("%w: %q", configuration.ErrNotFound, name)
	}
	return cfg, nil
}
