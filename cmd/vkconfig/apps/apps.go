package apps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dobrovols/vkconfig/internal/cli/output"
	"github.com/dobrovols/vkconfig/internal/cli/session"
	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/configurator"
)

// ErrNoApplication is returned by launch when no executable is given and
// none was launched before.
var ErrNoApplication = errors.New("no application given and none launched before")

// NewAppsCommand constructs the `vkconfig apps` parent command.
func NewAppsCommand(global *session.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "apps",
		Aliases: []string{"applications"},
		Short:   "Manage the application list and launch applications",
	}

	cmd.AddCommand(newListCommand(global))
	cmd.AddCommand(newAddCommand(global))
	cmd.AddCommand(newRemoveCommand(global))
	cmd.AddCommand(newLaunchCommand(global))

	return cmd
}

type appView struct {
	Name       string `json:"name"`
	Executable string `json:"executable"`
	WorkingDir string `json:"workingDir,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	LogFile    string `json:"logFile,omitempty"`
	Override   bool   `json:"override"`
	Last       bool   `json:"lastLaunched,omitempty"`
}

func newListCommand(global *session.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
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
	list, err := s.Applications()
	if err != nil {
		return err
	}
	last, _ := s.LastLaunchedApplication()
	views := make([]appView, 0, len(list))
	for _, app := range list {
		views = append(views, appView{
			Name:       app.Name,
			Executable: app.Executable,
			WorkingDir: app.WorkingDir,
			Arguments:  app.Arguments,
			LogFile:    app.LogFile,
			Override:   app.OverrideEnabled,
			Last:       app.Executable == last.Executable,
		})
	}

	return output.Render(cmd.OutOrStdout(), format, views, func(w io.Writer) error {
		if len(views) == 0 {
			fmt.Fprintln(w, "No applications listed.")
			return nil
		}
		tw := output.Table(w)
		fmt.Fprintln(tw, "NAME\tOVERRIDE\tEXECUTABLE\tARGUMENTS")
		for _, v := range views {
			name := v.Name
			if v.Last {
				name += " (last)"
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", name, v.Override, v.Executable, v.Arguments)
		}
		return tw.Flush()
	})
}

// AddOptions holds flags for `vkconfig apps add`.
type AddOptions struct {
	Name       string
	WorkingDir string
	Arguments  string
	LogFile    string
	Override   bool
}

func (o AddOptions) application(executable string) configurator.Application {
	return configurator.Application{
		Name:            o.Name,
		Executable:      executable,
		WorkingDir:      o.WorkingDir,
		Arguments:       o.Arguments,
		LogFile:         o.LogFile,
		OverrideEnabled: o.Override,
	}
}

func newAddCommand(global *session.Options) *cobra.Command {
	opts := AddOptions{}
	cmd := &cobra.Command{
		Use:   "add <executable>",
		Short: "Add an application to the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				return runAdd(cmd, opts, s, args[0])
			})
		},
	}
	bindAppFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.Name, "name", "", "Display name; defaults to the executable base name")
	cmd.Flags().BoolVar(&opts.Override, "override", true, "Include the application when the override applies only to listed applications")
	return cmd
}

func bindAppFlags(cmd *cobra.Command, opts *AddOptions) {
	cmd.Flags().StringVar(&opts.WorkingDir, "workdir", "", "Working directory for launches")
	cmd.Flags().StringVar(&opts.Arguments, "args", "", "Command line arguments, split with shell quoting rules")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "File receiving the application output")
}

// RunAddForTest executes the add flow against an open session.
func RunAddForTest(cmd *cobra.Command, opts AddOptions, s *session.Session, executable string) error {
	return runAdd(cmd, opts, s, executable)
}

func runAdd(cmd *cobra.Command, opts AddOptions, s *session.Session, executable string) error {
	if err := s.AddApplication(opts.application(executable)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", executable)
	return nil
}

func newRemoveCommand(global *session.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <executable>",
		Short: "Remove an application from the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Run(cmd, global, func(s *session.Session) error {
				if err := s.RemoveApplication(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

// LaunchOptions holds flags for `vkconfig apps launch`.
type LaunchOptions struct {
	AddOptions
	Configuration string
	Quiet         bool
}

func newLaunchCommand(global *session.Options) *cobra.Command {
	opts := LaunchOptions{}
	cmd := &cobra.Command{
		Use:   "launch [executable]",
		Short: "Run an application with a configuration pushed for its lifetime",
		Long: "Run an application to completion with its output captured in a log file. " +
			"Without an executable the last launched application is used. " +
			"The application's exit code becomes vkconfig's exit code.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			executable := ""
			if len(args) == 1 {
				executable = args[0]
			}
			return session.Run(cmd, global, func(s *session.Session) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				cmd.SetContext(ctx)
				return runLaunch(cmd, opts, s, executable)
			})
		},
	}
	bindAppFlags(cmd, &opts.AddOptions)
	cmd.Flags().StringVar(&opts.Configuration, "config", "", "Configuration to push while the application runs")
	cmd.Flags().BoolVar(&opts.Quiet, "quiet", false, "Only write the application output to the log file")
	return cmd
}

// RunLaunchForTest executes the launch flow against an open session.
func RunLaunchForTest(cmd *cobra.Command, opts LaunchOptions, s *session.Session, executable string) error {
	return runLaunch(cmd, opts, s, executable)
}

func runLaunch(cmd *cobra.Command, opts LaunchOptions, s *session.Session, executable string) error {
	app, err := selectApplication(opts, s, executable)
	if err != nil {
		return err
	}

	var cfg *configuration.Configuration
	if opts.Configuration != "" {
		if cfg = s.FindConfiguration(opts.Configuration); cfg == nil {
			return fmt.Errorf("%w: %q", configuration.ErrNotFound, opts.Configuration)
		}
	}

	var sink io.Writer
	if !opts.Quiet {
		sink = cmd.OutOrStdout()
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := s.LaunchApplication(ctx, app, cfg, sink)
	if result.LogFile != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Log written to %s\n", result.LogFile)
	}
	if err != nil && result.ExitCode > 0 {
		return session.NewExitError(result.ExitCode, err)
	}
	return err
}

// selectApplication prefers the listed entry for executable, falling back to
// an unlisted one built from flags, or to the last launched application.
func selectApplication(opts LaunchOptions, s *session.Session, executable string) (configurator.Application, error) {
	if executable == "" {
		app, ok := s.LastLaunchedApplication()
		if !ok {
			return configurator.Application{}, ErrNoApplication
		}
		return app, nil
	}
	list, err := s.Applications()
	if err != nil {
		return configurator.Application{}, err
	}
	for _, app := range list {
		if app.Executable != executable {
			continue
		}
		if opts.Arguments != "" {
			app.Arguments = opts.Arguments
		}
		if opts.WorkingDir != "" {
			app.WorkingDir = opts.WorkingDir
		}
		if opts.LogFile != "" {
			app.LogFile = opts.LogFile
		}
		return app, nil
	}
	return opts.application(executable), nil
}
