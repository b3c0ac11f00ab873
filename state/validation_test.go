package state

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/skein/protocol"
	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("ab_cd"))
	assert.NoError(t, NameValidator("abcd-a.com"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("1A"))
	assert.Error(t, NameValidator("node name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("\t"))
	assert.Error(t, NameValidator("abcd-a.com\\hi"))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func validNetwork() *CentralCfg {
	return &CentralCfg{
		Nodes: []NodeCfg{
			{Id: "s", Address: netip.MustParseAddr("10.1.0.1"), Endpoint: netip.MustParseAddrPort("127.0.0.1:57001")},
			{Id: "a", Address: netip.MustParseAddr("10.1.0.2"), Endpoint: netip.MustParseAddrPort("127.0.0.1:57002")},
		},
		Graph: []string{"s, a"},
	}
}

func TestCentralConfigValidator_Valid(t *testing.T) {
	assert.NoError(t, CentralConfigValidator(validNetwork()))
}

func TestCentralConfigValidator_DuplicateAddress(t *testing.T) {
	cfg := validNetwork()
	cfg.Nodes[1].Address = cfg.Nodes[0].Address
	assert.ErrorContains(t, CentralConfigValidator(cfg), "share address")
}

func TestCentralConfigValidator_DuplicateId(t *testing.T) {
	cfg := validNetwork()
	cfg.Nodes[1].Id = "s"
	assert.ErrorContains(t, CentralConfigValidator(cfg), "duplicate node id: s")
}

func TestCentralConfigValidator_BadNodes(t *testing.T) {
	cfg := validNetwork()
	cfg.Nodes[0].Address = netip.MustParseAddr("fd00::1")
	assert.Error(t, CentralConfigValidator(cfg))

	cfg = validNetwork()
	cfg.Nodes[0].Address = protocol.Broadcast
	assert.Error(t, CentralConfigValidator(cfg))

	cfg = validNetwork()
	cfg.Nodes[0].Endpoint = netip.AddrPort{}
	assert.Error(t, CentralConfigValidator(cfg))

	cfg = validNetwork()
	cfg.Graph = []string{"s, x"}
	assert.ErrorContains(t, CentralConfigValidator(cfg), "x is not a valid node/group")
}

func TestDsrConfigValidator(t *testing.T) {
	assert.NoError(t, DsrConfigValidator(DefaultDsrCfg()))

	cfg := DefaultDsrCfg()
	cfg.RequestPeriod = time.Minute
	assert.ErrorContains(t, DsrConfigValidator(cfg), "exceeds max_request_period")

	cfg = DefaultDsrCfg()
	cfg.CacheType = LinkCacheType
	assert.ErrorContains(t, DsrConfigValidator(cfg), "not supported")

	cfg = DefaultDsrCfg()
	cfg.MaxMaintRexmt = Ptr(-1)
	assert.ErrorContains(t, DsrConfigValidator(cfg), "max_maint_rexmt")

	cfg = DefaultDsrCfg()
	cfg.TryPassiveAcks = Ptr(-2)
	assert.ErrorContains(t, DsrConfigValidator(cfg), "try_passive_acks")

	// zero is a valid count
	cfg = DefaultDsrCfg()
	cfg.MaxMaintRexmt = Ptr(0)
	cfg.TryPassiveAcks = Ptr(0)
	assert.NoError(t, DsrConfigValidator(cfg))
}

func TestLocalConfigValidator(t *testing.T) {
	central := validNetwork()
	assert.NoError(t, LocalConfigValidator(&LocalCfg{Id: "s", Probes: []NodeId{"a"}}, central))
	assert.Error(t, LocalConfigValidator(&LocalCfg{Id: "q"}, central))
	assert.Error(t, LocalConfigValidator(&LocalCfg{Id: "s", Probes: []NodeId{"s"}}, central))
	assert.Error(t, LocalConfigValidator(&LocalCfg{Id: "s", Probes: []NodeId{"zz"}}, central))
}
