package mock

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/skein/state"
)

// GetMockLatency returns the configured latency of the link between a and b
func GetMockLatency(a, b state.NodeId, weights []state.Triple[state.NodeId, state.NodeId, time.Duration]) (time.Duration, bool) {
	for _, edge := range weights {
		if edge.V1 == a && edge.V2 == b || edge.V1 == b && edge.V2 == a {
			return edge.V3, true
		}
	}
	return 0, false
}

// MockCfg describes a five node network with uneven link latencies
func MockCfg() (state.CentralCfg, []state.Triple[state.NodeId, state.NodeId, time.Duration]) {
	cfg := state.CentralCfg{
		Nodes: make([]state.NodeCfg, 0),
		Dsr:   state.DefaultDsrCfg(),
	}
	basePort := 23000
	names := []string{
		"bob",
		"jeb",
		"kat",
		"eve",
		"ada",
	}
	for i, node := range names {
		cfg.Nodes = append(cfg.Nodes, state.NodeCfg{
			Id:       state.NodeId(node),
			Address:  netip.AddrFrom4([4]byte{10, 2, 0, byte(i + 1)}),
			Endpoint: netip.MustParseAddrPort(fmt.Sprintf("127.0.0.1:%d", basePort+i)),
		})
	}
	cfg.Graph = []string{
		"bob, jeb, kat",
		"bob, eve",
		"kat, ada",
		"kat, eve",
		"eve, ada",
	}
	weights := []state.Triple[state.NodeId, state.NodeId, time.Duration]{
		{V1: "bob", V2: "jeb", V3: time.Millisecond},
		{V1: "bob", V2: "kat", V3: time.Millisecond},
		{V1: "bob", V2: "eve", V3: 10 * time.Millisecond},
		{V1: "jeb", V2: "kat", V3: time.Millisecond},
		{V1: "kat", V2: "ada", V3: time.Millisecond},
		{V1: "kat", V2: "eve", V3: time.Millisecond},
		{V1: "eve", V2: "ada", V3: 2 * time.Millisecond},
	}
	return cfg, weights
}

// NewMediumFromConfig connects every configured node according to the graph
func NewMediumFromConfig(sim *Sim, cfg *state.CentralCfg, weights []state.Triple[state.NodeId, state.NodeId, time.Duration]) (*Medium, error) {
	m := NewMedium(sim)
	edges, err := cfg.Edges()
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		a := cfg.GetNode(e.V1).Address
		b := cfg.GetNode(e.V2).Address
		if lat, ok := GetMockLatency(e.V1, e.V2, weights); ok {
			m.ConnectWithLatency(a, b, lat)
		} else {
			m.Connect(a, b)
		}
	}
	return m, nil
}
