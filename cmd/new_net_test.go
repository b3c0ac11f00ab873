package cmd

import (
	"path/filepath"
	"testing"

	"github.com/encodeous/skein/core"
	"github.com/encodeous/skein/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainNetwork(t *testing.T) {
	central, locals, err := chainNetwork(3, 5000)
	require.NoError(t, err)
	require.Len(t, locals, 3)
	assert.Equal(t, []state.NodeId{"node2"}, central.GetPeers("node1"))
	assert.Equal(t, []state.NodeId{"node1", "node3"}, central.GetPeers("node2"))
	assert.Equal(t, []state.NodeId{"node3"}, locals[0].Probes)
	for _, l := range locals {
		assert.NoError(t, state.LocalConfigValidator(&l, central))
	}

	_, _, err = chainNetwork(1, 5000)
	assert.Error(t, err)
}

func TestChainNetworkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	central, locals, err := chainNetwork(2, 5000)
	require.NoError(t, err)
	require.NoError(t, writeYaml(filepath.Join(dir, "central.yaml"), central))
	require.NoError(t, writeYaml(filepath.Join(dir, "node1.yaml"), locals[0]))

	readCentral, err := core.ReadCentralConfig(filepath.Join(dir, "central.yaml"))
	require.NoError(t, err)
	assert.Equal(t, central.Nodes, readCentral.Nodes)
	assert.Equal(t, central.Graph, readCentral.Graph)
	assert.Equal(t, state.DefaultDsrCfg(), readCentral.Dsr)

	readNode, err := core.ReadNodeConfig(filepath.Join(dir, "node1.yaml"))
	require.NoError(t, err)
	assert.Equal(t, locals[0], *readNode)
}
