package cli

import (
	"os"

	"github.com/spf13/cobra"

	appscmd "github.com/dobrovols/vkconfig/cmd/vkconfig/apps"
	configscmd "github.com/dobrovols/vkconfig/cmd/vkconfig/configs"
	doctorcmd "github.com/dobrovols/vkconfig/cmd/vkconfig/doctor"
	layerscmd "github.com/dobrovols/vkconfig/cmd/vkconfig/layers"
	overridecmd "github.com/dobrovols/vkconfig/cmd/vkconfig/override"
	settingscmd "github.com/dobrovols/vkconfig/cmd/vkconfig/settings"
	"github.com/dobrovols/vkconfig/internal/cli/session"
)

// NewRootCommand constructs the root vkconfig command.
func NewRootCommand() *cobra.Command {
	global := &session.Options{}
	cmd := &cobra.Command{
		Use:   "vkconfig",
		Short: "vkconfig controls which Vulkan layers applications load and how they are configured",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnvironment(cmd.Flags(), os.LookupEnv)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&global.ConfigPath, "config", "", "Path to the preferences file (defaults to $VKCONFIG_CONFIG or the XDG config directory)")
	flags.StringVar(&global.LogLevel, "log-level", "", "Console log level: debug, info, warn or error (defaults to $VKCONFIG_LOG_LEVEL or warn)")
	flags.StringVar(&global.LogFormat, "log-format", "", "Console log format: text or json (defaults to text on a terminal)")
	flags.StringVar(&global.LogFile, "log-file", "", "Append structured JSON log entries to this file")
	flags.BoolVar(&global.Events, "events", false, "Write workflow events as JSON lines to stderr")
	flags.StringVar(&global.StateFile, "state-file", "", "Path of the override activation record")
	flags.StringVar(&global.StateFileName, "state-file-name", "", "File name of the override activation record inside the state directory")
	cmd.MarkFlagsMutuallyExclusive("state-file", "state-file-name")

	cmd.AddCommand(layerscmd.NewLayersCommand(global))
	cmd.AddCommand(configscmd.NewConfigsCommand(global))
	cmd.AddCommand(overridecmd.NewOverrideCommand(global))
	cmd.AddCommand(appscmd.NewAppsCommand(global))
	cmd.AddCommand(doctorcmd.NewDoctorCommand(global))
	cmd.AddCommand(settingscmd.NewSettingsCommand(global))
	cmd.AddCommand(settingscmd.NewPathsCommand(global))

	return cmd
}
