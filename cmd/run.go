package cmd

import (
	"github.com/encodeous/skein/core"
	"github.com/encodeous/skein/state"
	"github.com/spf13/cobra"
)

var runOpts core.Options

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a skein node",
	Long:  `Runs the node named in the node config. Frames are exchanged with the neighbours listed in the central graph over UDP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return core.Bootstrap(state.CentralConfigPath, state.NodeConfigPath, runOpts)
	},
	GroupID: "sk",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVarP(&runOpts.Verbose, "verbose", "v", false, "Verbose output")
	runCmd.Flags().BoolVarP(&runOpts.Trace, "trace", "t", false, "Log every protocol event")
	runCmd.Flags().StringVarP(&runOpts.LogPath, "log", "l", "", "Also write logs to this file")
	runCmd.Flags().StringVarP(&runOpts.DebugAddr, "debug", "d", "", "Serve metrics and the inspect page on this address, e.g. 127.0.0.1:6060")
}
