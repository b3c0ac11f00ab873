package state

import (
	"net/netip"
	"slices"
	"time"
)

type NodeId string

// NodeCfg is the network-wide description of a node
type NodeCfg struct {
	Id NodeId
	// Address is the protocol address this node answers to
	Address netip.Addr
	// Endpoint is the link address, the UDP endpoint frames are exchanged on
	Endpoint netip.AddrPort
}

type CentralCfg struct {
	Nodes     []NodeCfg
	Graph     []string
	Dsr       DsrCfg `yaml:"dsr,omitempty"`
	Timestamp int64  `yaml:",omitempty"`
}

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Id            NodeId        // unique id for this node
	LogPath       string        `yaml:"log_path,omitempty"`       // if not empty, skein will write to this file
	Probes        []NodeId      `yaml:"probes,omitempty"`         // nodes that receive periodic upper-layer traffic
	ProbeInterval time.Duration `yaml:"probe_interval,omitempty"` // defaults to DefaultProbeInterval
	ProbeSize     int           `yaml:"probe_size,omitempty"`
}

// DsrCfg holds the protocol tunables. Zero values are replaced by DefaultDsrCfg in WithDefaults.
// Counts where zero is meaningful are pointers, nil takes the default.
type DsrCfg struct {
	DiscoveryHopLimit     uint8         `yaml:"discovery_hop_limit,omitempty"`
	MaxSalvageCount       uint8         `yaml:"max_salvage_count,omitempty"`
	RequestPeriod         time.Duration `yaml:"request_period,omitempty"`
	MaxRequestPeriod      time.Duration `yaml:"max_request_period,omitempty"`
	NonpropRequestTimeout time.Duration `yaml:"nonprop_request_timeout,omitempty"`
	RreqRetries           int           `yaml:"rreq_retries,omitempty"`
	MaxMaintRexmt         *int          `yaml:"max_maint_rexmt,omitempty"` // 0 gives up after the first transmission
	NodeTraversalTime     time.Duration `yaml:"node_traversal_time,omitempty"`
	RetransIncr           time.Duration `yaml:"retrans_incr,omitempty"`

	MaxSendBuffLen    int           `yaml:"max_send_buff_len,omitempty"`
	SendBufferTimeout time.Duration `yaml:"send_buffer_timeout,omitempty"`
	SendBuffInterval  time.Duration `yaml:"send_buff_interval,omitempty"`
	MaxMaintainLen    int           `yaml:"max_maintain_len,omitempty"`
	MaxMaintainTime   time.Duration `yaml:"max_maintain_time,omitempty"`

	CacheType         string        `yaml:"cache_type,omitempty"`
	MaxCacheLen       int           `yaml:"max_cache_len,omitempty"`
	MaxCacheTime      time.Duration `yaml:"max_cache_time,omitempty"`
	MaxEntriesEachDst int           `yaml:"max_entries_each_dst,omitempty"`
	UseExtends        time.Duration `yaml:"use_extends,omitempty"`
	EnableSubRoute    bool          `yaml:"enable_sub_route,omitempty"`

	MaxRreqTime      time.Duration `yaml:"max_rreq_time,omitempty"`
	RequestTableSize int           `yaml:"request_table_size,omitempty"`
	RequestTableIds  int           `yaml:"request_table_ids,omitempty"`
	MaxRreqId        uint16        `yaml:"max_rreq_id,omitempty"`

	BlacklistTimeout   time.Duration `yaml:"blacklist_timeout,omitempty"`
	BroadcastJitter    time.Duration `yaml:"broadcast_jitter,omitempty"`
	PassiveAckTimeout  time.Duration `yaml:"passive_ack_timeout,omitempty"`
	TryPassiveAcks     *int          `yaml:"try_passive_acks,omitempty"` // 0 always requests a network ack
	LinkAcknowledgment bool          `yaml:"link_acknowledgment,omitempty"`
	GratReplyHoldoff   time.Duration `yaml:"grat_reply_holdoff,omitempty"`
	GraReplyTableSize  int           `yaml:"gra_reply_table_size,omitempty"`

	// consumed by link caches only
	StabilityDecrFactor uint64        `yaml:"stability_decr_factor,omitempty"`
	StabilityIncrFactor uint64        `yaml:"stability_incr_factor,omitempty"`
	InitStability       time.Duration `yaml:"init_stability,omitempty"`
	MinLifeTime         time.Duration `yaml:"min_life_time,omitempty"`
}

func DefaultDsrCfg() DsrCfg {
	return DsrCfg{
		DiscoveryHopLimit:     255,
		MaxSalvageCount:       15,
		RequestPeriod:         500 * time.Millisecond,
		MaxRequestPeriod:      10 * time.Second,
		NonpropRequestTimeout: 30 * time.Millisecond,
		RreqRetries:           16,
		MaxMaintRexmt:         Ptr(2),
		NodeTraversalTime:     40 * time.Millisecond,
		RetransIncr:           20 * time.Millisecond,
		MaxSendBuffLen:        64,
		SendBufferTimeout:     30 * time.Second,
		SendBuffInterval:      500 * time.Millisecond,
		MaxMaintainLen:        50,
		MaxMaintainTime:       30 * time.Second,
		CacheType:             PathCacheType,
		MaxCacheLen:           64,
		MaxCacheTime:          300 * time.Second,
		MaxEntriesEachDst:     20,
		UseExtends:            120 * time.Second,
		MaxRreqTime:           30 * time.Second,
		RequestTableSize:      64,
		RequestTableIds:       16,
		MaxRreqId:             256,
		BlacklistTimeout:      3 * time.Second,
		BroadcastJitter:       10 * time.Millisecond,
		PassiveAckTimeout:     100 * time.Millisecond,
		TryPassiveAcks:        Ptr(1),
		GratReplyHoldoff:      time.Second,
		GraReplyTableSize:     64,
		StabilityDecrFactor:   2,
		StabilityIncrFactor:   4,
		InitStability:         25 * time.Second,
		MinLifeTime:           time.Second,
	}
}

// WithDefaults returns a copy of c where every unset tunable takes its default value
func (c DsrCfg) WithDefaults() DsrCfg {
	d := DefaultDsrCfg()
	def(&c.DiscoveryHopLimit, d.DiscoveryHopLimit)
	def(&c.MaxSalvageCount, d.MaxSalvageCount)
	def(&c.RequestPeriod, d.RequestPeriod)
	def(&c.MaxRequestPeriod, d.MaxRequestPeriod)
	def(&c.NonpropRequestTimeout, d.NonpropRequestTimeout)
	def(&c.RreqRetries, d.RreqRetries)
	def(&c.MaxMaintRexmt, d.MaxMaintRexmt)
	def(&c.NodeTraversalTime, d.NodeTraversalTime)
	def(&c.RetransIncr, d.RetransIncr)
	def(&c.MaxSendBuffLen, d.MaxSendBuffLen)
	def(&c.SendBufferTimeout, d.SendBufferTimeout)
	def(&c.SendBuffInterval, d.SendBuffInterval)
	def(&c.MaxMaintainLen, d.MaxMaintainLen)
	def(&c.MaxMaintainTime, d.MaxMaintainTime)
	def(&c.CacheType, d.CacheType)
	def(&c.MaxCacheLen, d.MaxCacheLen)
	def(&c.MaxCacheTime, d.MaxCacheTime)
	def(&c.MaxEntriesEachDst, d.MaxEntriesEachDst)
	def(&c.UseExtends, d.UseExtends)
	def(&c.MaxRreqTime, d.MaxRreqTime)
	def(&c.RequestTableSize, d.RequestTableSize)
	def(&c.RequestTableIds, d.RequestTableIds)
	def(&c.MaxRreqId, d.MaxRreqId)
	def(&c.BlacklistTimeout, d.BlacklistTimeout)
	def(&c.BroadcastJitter, d.BroadcastJitter)
	def(&c.PassiveAckTimeout, d.PassiveAckTimeout)
	def(&c.TryPassiveAcks, d.TryPassiveAcks)
	def(&c.GratReplyHoldoff, d.GratReplyHoldoff)
	def(&c.GraReplyTableSize, d.GraReplyTableSize)
	def(&c.StabilityDecrFactor, d.StabilityDecrFactor)
	def(&c.StabilityIncrFactor, d.StabilityIncrFactor)
	def(&c.InitStability, d.InitStability)
	def(&c.MinLifeTime, d.MinLifeTime)
	return c
}

func Ptr[T any](v T) *T {
	return &v
}

func def[T comparable](field *T, val T) {
	var zero T
	if *field == zero {
		*field = val
	}
}

func (e *CentralCfg) NodeNames() []string {
	names := make([]string, 0, len(e.Nodes))
	for _, n := range e.Nodes {
		names = append(names, string(n.Id))
	}
	return names
}

// Edges returns the adjacency described by the graph section
func (e *CentralCfg) Edges() ([]Pair[NodeId, NodeId], error) {
	return ParseGraph(e.Graph, e.NodeNames())
}

func (e *CentralCfg) GetPeers(curId NodeId) []NodeId {
	graph, err := e.Edges()
	if err != nil {
		panic(err)
	}
	nodes := make([]NodeId, 0)
	for _, edge := range graph {
		switch curId {
		case edge.V1:
			nodes = append(nodes, edge.V2)
		case edge.V2:
			nodes = append(nodes, edge.V1)
		}
	}
	slices.Sort(nodes)
	return nodes
}

func (e *CentralCfg) IsNode(node NodeId) bool {
	return e.TryGetNode(node) != nil
}

func (e *CentralCfg) GetNode(node NodeId) NodeCfg {
	val := e.TryGetNode(node)
	if val == nil {
		panic("node " + string(node) + " not found")
	}
	return *val
}

func (e *CentralCfg) TryGetNode(node NodeId) *NodeCfg {
	idx := slices.IndexFunc(e.Nodes, func(cfg NodeCfg) bool {
		return cfg.Id == node
	})
	if idx == -1 {
		return nil
	}
	return &e.Nodes[idx]
}
