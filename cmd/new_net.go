package cmd

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/encodeous/skein/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var (
	newNetSize     int
	newNetBasePort int
	newNetDir      string
)

// netCmd represents the new-net command
var netCmd = &cobra.Command{
	Use:   "new-net",
	Short: "Create a chain network with a central config and one node config per node",
	RunE: func(cmd *cobra.Command, args []string) error {
		central, locals, err := chainNetwork(newNetSize, newNetBasePort)
		if err != nil {
			return err
		}
		if err = os.MkdirAll(newNetDir, 0700); err != nil {
			return err
		}
		if err = writeYaml(filepath.Join(newNetDir, "central.yaml"), central); err != nil {
			return err
		}
		for _, l := range locals {
			if err = writeYaml(filepath.Join(newNetDir, string(l.Id)+".yaml"), l); err != nil {
				return err
			}
		}
		fmt.Printf("wrote %d node configs to %s\n", len(locals), newNetDir)
		return nil
	},
	GroupID: "init",
}

// chainNetwork builds n nodes on loopback, each linked to the next. The ends probe each other.
func chainNetwork(n, basePort int) (*state.CentralCfg, []state.LocalCfg, error) {
	if n < 2 || n > 250 {
		return nil, nil, fmt.Errorf("network size must be between 2 and 250, got %d", n)
	}
	central := &state.CentralCfg{}
	locals := make([]state.LocalCfg, 0, n)
	for i := range n {
		id := state.NodeId(fmt.Sprintf("node%d", i+1))
		central.Nodes = append(central.Nodes, state.NodeCfg{
			Id:       id,
			Address:  netip.AddrFrom4([4]byte{10, 7, 0, byte(i + 1)}),
			Endpoint: netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(basePort+i)),
		})
		locals = append(locals, state.LocalCfg{Id: id})
		if i > 0 {
			central.Graph = append(central.Graph, fmt.Sprintf("node%d, node%d", i, i+1))
		}
	}
	locals[0].Probes = []state.NodeId{locals[n-1].Id}
	locals[n-1].Probes = []state.NodeId{locals[0].Id}
	if err := state.CentralConfigValidator(central); err != nil {
		return nil, nil, err
	}
	return central, locals, nil
}

func writeYaml(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func init() {
	rootCmd.AddCommand(netCmd)

	netCmd.Flags().IntVarP(&newNetSize, "size", "s", 4, "Number of nodes")
	netCmd.Flags().IntVarP(&newNetBasePort, "port", "p", state.DefaultPort, "UDP port of the first node, the others follow")
	netCmd.Flags().StringVarP(&newNetDir, "out", "o", ".", "Output directory")
}
