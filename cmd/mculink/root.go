package main

import (
	"flag"

	"github.com/spf13/cobra"

	"github.com/robotalks/mculink/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "mculink",
	Short: "Host side of the microcontroller serial link",
	Long: `mculink talks to the microcontroller over a serial port or a websocket
bridge.

Connection:
  --device /dev/ttyUSB0 [--baud 115200]
  --device ws://host/path

Without --device the usual serial ports are tried in order. Every flag has
an MCULINK_* environment variable counterpart, e.g. MCULINK_DEVICE.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog reads its settings from the go flag set.
		flag.CommandLine.Parse(nil)
		return config.Default().Validate()
	},
}

func init() {
	fs := rootCmd.PersistentFlags()
	config.SetupFlags(fs)
	fs.AddGoFlagSet(flag.CommandLine)
}
