package main

import (
	"github.com/spf13/cobra"

	"github.com/robotalks/mculink/pkg/cli/sh"
	"github.com/robotalks/mculink/pkg/config"

	_ "github.com/robotalks/mculink/pkg/cli/cmds/all"
)

var shellCmd = &cobra.Command{
	Use:     "shell [COMMAND [ARGS...]]",
	Aliases: []string{"sh"},
	Short:   "Interactive shell, or run one shell command",
	Long: `shell connects the device and starts an interactive shell. With a
command, it runs the command and exits. Use -- before arguments starting
with a dash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sh.New(config.Default()).WithAutoConnect(true).Run(args...)
	},
}

// shellAlias runs a single shell command from the command line.
func shellAlias(name, use, short string, connect bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " " + use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sh.New(config.Default()).WithAutoConnect(connect)
			s.Interactive = false
			return s.Run(append([]string{name}, args...)...)
		},
	}
}

func init() {
	sh.SetupFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(
		shellCmd,
		shellAlias("ports", "", "List serial ports", false),
		shellAlias("ping", "", "Check the device answers", true),
		shellAlias("version", "", "Show firmware version", true),
		shellAlias("call", "CMD [HEX...]", "Send a raw command", true),
		shellAlias("push", "LOCAL-FILE [REMOTE-NAME]", "Upload a file to the device", true),
		shellAlias("fetch", "REMOTE-NAME", "Ask the device to send a file", true),
		shellAlias("fota", "FIRMWARE-FILE", "Update the device firmware", true),
	)
}
