package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/skein/core"
	"github.com/encodeous/skein/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var checkNode bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validates the central config, and optionally the node config against it",
	RunE: func(cmd *cobra.Command, args []string) error {
		central, err := core.ReadCentralConfig(state.CentralConfigPath)
		if err != nil {
			return err
		}
		if err = state.CentralConfigValidator(central); err != nil {
			return err
		}
		edges, err := central.Edges()
		if err != nil {
			return err
		}
		if checkNode {
			node, err := core.ReadNodeConfig(state.NodeConfigPath)
			if err != nil {
				return err
			}
			if err = state.LocalConfigValidator(node, central); err != nil {
				return err
			}
			fmt.Printf("node %s has neighbours %v\n", node.Id, central.GetPeers(node.Id))
		}
		fmt.Printf("%d nodes, %d links\n", len(central.Nodes), len(edges))
		tunables, err := yaml.Marshal(central.Dsr)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(tunables)
		return err
	},
	GroupID: "sk",
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkNode, "node", false, "Also validate the node config")
}
