package cmd

import (
	"os"

	"github.com/encodeous/skein/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "skein",
	Short: "skein on-demand source routing",
	Long: `skein is an on-demand source routing overlay.
Nodes discover routes only when they have traffic to send, and every packet carries the full route it travels.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize skein",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sk",
		Title: "skein Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&state.NodeConfigPath, "node-config", "n", state.NodeConfigPath, "node-specific config")
	rootCmd.PersistentFlags().StringVarP(&state.CentralConfigPath, "central-config", "c", state.CentralConfigPath, "network-global config")
}
