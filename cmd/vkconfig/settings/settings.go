package settings

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dobrovols/vkconfig/internal/cli/logging"
	"github.com/dobrovols/vkconfig/internal/cli/output"
	"github.com/dobrovols/vkconfig/internal/cli/session"
	"github.com/dobrovols/vkconfig/pkg/paths"
)

// NewSettingsCommand constructs the `vkconfig settings` parent command.
func NewSettingsCommand(global *session.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or reset vkconfig preferences",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the preferences file and its values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runShow(cmd, format, s)
			})
		},
	}
	show.Flags().StringVar(&format, "output", output.Text, "Output format: text or json")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Remove the override and restore default preferences and paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runReset(cmd, s)
			})
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}

type settingsPayload struct {
	File                string   `json:"file"`
	Source              string   `json:"source"`
	ActiveConfiguration string   `json:"activeConfiguration,omitempty"`
	OverrideActive      bool     `json:"overrideActive"`
	ApplyOnlyToList     bool     `json:"applyOnlyToList"`
	KeepActiveOnExit    bool     `json:"keepActiveOnExit"`
	LaunchApplication   string   `json:"launchApplication,omitempty"`
	CustomPaths         []string `json:"customPaths,omitempty"`
}

// RunShowForTest executes the settings show flow against an open session.
func RunShowForTest(cmd *cobra.Command, format string, s *session.Session) error {
	return runShow(cmd, format, s)
}

func runShow(cmd *cobra.Command, format string, s *session.Session) error {
	prefs := s.Preferences()
	payload := settingsPayload{
		File:                s.Store.Path(),
		Source:              string(s.Source),
		ActiveConfiguration: prefs.ActiveConfiguration,
		OverrideActive:      prefs.OverrideActive,
		ApplyOnlyToList:     prefs.ApplyOnlyToList,
		KeepActiveOnExit:    prefs.KeepActiveOnExit,
		LaunchApplication:   prefs.LaunchApplication,
		CustomPaths:         prefs.CustomPaths,
	}
	return output.Render(cmd.OutOrStdout(), format, payload, func(w io.Writer) error {
		home := userHome()
		tw := output.Table(w)
		fmt.Fprintf(tw, "Preferences file:\t%s (%s)\n", logging.ShortenHome(payload.File, home), payload.Source)
		fmt.Fprintf(tw, "Active configuration:\t%s\n", payload.ActiveConfiguration)
		fmt.Fprintf(tw, "Override active:\t%t\n", payload.OverrideActive)
		fmt.Fprintf(tw, "Apply only to list:\t%t\n", payload.ApplyOnlyToList)
		fmt.Fprintf(tw, "Keep active on exit:\t%t\n", payload.KeepActiveOnExit)
		fmt.Fprintf(tw, "Last launched:\t%s\n", payload.LaunchApplication)
		for _, p := range payload.CustomPaths {
			fmt.Fprintf(tw, "Custom layer path:\t%s\n", logging.ShortenHome(p, home))
		}
		return tw.Flush()
	})
}

// RunResetForTest executes the reset flow against an open session.
func RunResetForTest(cmd *cobra.Command, s *session.Session) error {
	return runReset(cmd, s)
}

func runReset(cmd *cobra.Command, s *session.Session) error {
	if err := s.ResetToDefaultSettings(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Preferences restored to defaults.")
	return nil
}

// NewPathsCommand constructs the `vkconfig paths` parent command.
func NewPathsCommand(global *session.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Show or change the directories vkconfig reads and writes",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "List every path role and its directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runPaths(cmd, format, s)
			})
		},
	}
	show.Flags().StringVar(&format, "output", output.Text, "Output format: text or json")

	set := &cobra.Command{
		Use:   "set <role> <dir>",
		Short: "Override the directory of a path role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runSetPath(cmd, s, args[0], args[1])
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset <role>",
		Short: "Return a path role to its default directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runSetPath(cmd, s, args[0], "")
			})
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

type pathView struct {
	Role string `json:"role"`
	Path string `json:"path"`
}

// RunPathsForTest executes the paths show flow against an open session.
func RunPathsForTest(cmd *cobra.Command, format string, s *session.Session) error {
	return runPaths(cmd, format, s)
}

func runPaths(cmd *cobra.Command, format string, s *session.Session) error {
	roles := paths.Roles()
	views := make([]pathView, 0, len(roles))
	for _, role := range roles {
		views = append(views, pathView{Role: role.String(), Path: s.Path(role)})
	}
	return output.Render(cmd.OutOrStdout(), format, views, func(w io.Writer) error {
		home := userHome()
		tw := output.Table(w)
		fmt.Fprintln(tw, "ROLE\tPATH")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%s\n", v.Role, logging.ShortenHome(v.Path, home))
		}
		return tw.Flush()
	})
}

// RunSetPathForTest executes the paths set flow; an empty dir resets role.
func RunSetPathForTest(cmd *cobra.Command, s *session.Session, role, dir string) error {
	return runSetPath(cmd, s, role, dir)
}

func runSetPath(cmd *cobra.Command, s *session.Session, name, dir string) error {
	role, err := paths.ParseRole(name)
	if err != nil {
		return session.NewExitError(session.ExitValidation, err)
	}
	s.SetPath(role, dir)
	switch role {
	case paths.RoleOverrideSettings, paths.RoleOverrideJSON:
		if err := s.RefreshConfiguration(); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", role, s.Path(role))
	return nil
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
