package override

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dobrovols/vkconfig/internal/cli/output"
	"github.com/dobrovols/vkconfig/internal/cli/session"
	"github.com/dobrovols/vkconfig/pkg/configuration"
)

// ActivateOptions holds flags for `vkconfig override activate`.
type ActivateOptions struct {
	ApplyOnlyToList bool
	// KeepActive is applied only when the flag was given.
	KeepActive    bool
	KeepActiveSet bool
}

// NewOverrideCommand constructs the `vkconfig override` parent command.
func NewOverrideCommand(global *session.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Control the layers override seen by Vulkan applications",
	}

	cmd.AddCommand(newActivateCommand(global))
	cmd.AddCommand(newDeactivateCommand(global))
	cmd.AddCommand(newStatusCommand(global))
	cmd.AddCommand(newRefreshCommand(global))

	return cmd
}

func newActivateCommand(global *session.Options) *cobra.Command {
	opts := ActivateOptions{}
	cmd := &cobra.Command{
		Use:   "activate <name>",
		Short: "Write the override for a configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.KeepActiveSet = cmd.Flags().Changed("keep-active")
			return session.Run(cmd, global, func(s *session.Session) error {
				return runActivate(cmd, opts, s, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&opts.ApplyOnlyToList, "apply-only-to-list", false, "Restrict the override to applications enabled in the application list")
	cmd.Flags().BoolVar(&opts.KeepActive, "keep-active", true, "Leave the override in place when vkconfig exits")
	return cmd
}

// RunActivateForTest executes the activate flow against an open session.
func RunActivateForTest(cmd *cobra.Command, opts ActivateOptions, s *session.Session, name string) error {
	return runActivate(cmd, opts, s, name)
}

func runActivate(cmd *cobra.Command, opts ActivateOptions, s *session.Session, name string) error {
	cfg := s.FindConfiguration(name)
	if cfg == nil {
		return fmt.Errorf("%w: %q", configuration.ErrNotFound, name)
	}
	if opts.KeepActiveSet {
		s.SetKeepActiveOnExit(opts.KeepActive)
	}
	if s.Preferences().ApplyOnlyToList != opts.ApplyOnlyToList {
		if err := s.SetApplyOnlyToList(opts.ApplyOnlyToList); err != nil {
			return err
		}
	}
	if err := s.SetActiveConfiguration(cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Override active: %s\n", cfg.Name)
	for _, name := range cfg.Unusable() {
		fmt.Fprintf(out, "warning: layer %s is not installed and was left out\n", name)
	}
	return nil
}

func newDeactivateCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Remove the override and restore replaced files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runDeactivate(cmd, s)
			})
		},
	}
}

// RunDeactivateForTest executes the deactivate flow against an open session.
func RunDeactivateForTest(cmd *cobra.Command, s *session.Session) error {
	return runDeactivate(cmd, s)
}

func runDeactivate(cmd *cobra.Command, s *session.Session) error {
	if s.ActiveConfiguration() == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No override is active.")
		return nil
	}
	if err := s.SetActiveConfiguration(nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Override removed.")
	return nil
}

type artifactView struct {
	Path    string `json:"path"`
	Existed bool   `json:"existed"`
}

type statusPayload struct {
	Active          bool           `json:"active"`
	Configuration   string         `json:"configuration,omitempty"`
	ApplyOnlyToList bool           `json:"applyOnlyToList"`
	Scope           []string       `json:"scope,omitempty"`
	KeepActive      bool           `json:"keepActiveOnExit"`
	Artifacts       []artifactView `json:"artifacts,omitempty"`
	LastAction      string         `json:"lastAction,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
}

func newStatusCommand(global *session.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active override and the files it owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runStatus(cmd, format, s)
			})
		},
	}
	cmd.Flags().StringVar(&format, "output", output.Text, "Output format: text or json")
	return cmd
}

// RunStatusForTest executes the status flow against an open session.
func RunStatusForTest(cmd *cobra.Command, format string, s *session.Session) error {
	return runStatus(cmd, format, s)
}

func runStatus(cmd *cobra.Command, format string, s *session.Session) error {
	record, err := s.ActivationStatus()
	if err != nil {
		return err
	}
	prefs := s.Preferences()
	payload := statusPayload{ApplyOnlyToList: prefs.ApplyOnlyToList, KeepActive: prefs.KeepActiveOnExit}
	if active := s.ActiveConfiguration(); active != nil {
		payload.Active = true
		payload.Configuration = active.Name
	}
	if record != nil {
		payload.Scope = record.Scope
		payload.LastAction = record.LastAction
		payload.Timestamp = record.Timestamp
		for _, change := range record.Artifacts {
			payload.Artifacts = append(payload.Artifacts, artifactView{Path: change.Path, Existed: change.Existed})
		}
	}

	return output.Render(cmd.OutOrStdout(), format, payload, func(w io.Writer) error {
		if !payload.Active {
			fmt.Fprintln(w, "Override: inactive")
			return nil
		}
		fmt.Fprintf(w, "Override: %s\n", payload.Configuration)
		if payload.ApplyOnlyToList {
			fmt.Fprintf(w, "Scope: %d listed applications\n", len(payload.Scope))
		} else {
			fmt.Fprintln(w, "Scope: all applications")
		}
		fmt.Fprintf(w, "Keep active on exit: %t\n", payload.KeepActive)
		for _, a := range payload.Artifacts {
			fmt.Fprintf(w, "  %s\n", a.Path)
		}
		if payload.Timestamp != "" {
			fmt.Fprintf(w, "Last %s at %s\n", payload.LastAction, payload.Timestamp)
		}
		return nil
	})
}

func newRefreshCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rewrite the override from the stored configuration and installed layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				if err := s.RefreshConfiguration(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Override refreshed.")
				return nil
			})
		},
	}
}
