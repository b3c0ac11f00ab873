package state

import "time"

var (
	// DataTTL is the IPv4 hop limit stamped on data and unicast control frames.
	DataTTL = uint8(64)
	// SafeMTU bounds the frames handed to the UDP link.
	SafeMTU = 1400
	// DefaultPort is used when a node endpoint omits the port.
	DefaultPort = 57175

	DispatchBufferLen     = 128
	DispatchWarnThreshold = 4 * time.Millisecond

	DefaultProbeInterval = 2 * time.Second

	// CacheType values
	PathCacheType = "path"
	LinkCacheType = "link"
)

var (
	NodeConfigPath    = "node.yaml"
	CentralConfigPath = "central.yaml"
)
