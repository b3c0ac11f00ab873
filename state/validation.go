package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/encodeous/skein/protocol"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func NodeConfigValidator(node *NodeCfg) error {
	err := NameValidator(string(node.Id))
	if err != nil {
		return err
	}
	if !node.Address.Is4() {
		return fmt.Errorf("node %s: address %s is not an IPv4 address", node.Id, node.Address)
	}
	if node.Address.IsUnspecified() || node.Address == protocol.Broadcast {
		return fmt.Errorf("node %s: address %s cannot be assigned to a node", node.Id, node.Address)
	}
	if !node.Endpoint.IsValid() {
		return fmt.Errorf("node %s: endpoint is invalid", node.Id)
	}
	return nil
}

func LocalConfigValidator(cfg *LocalCfg, central *CentralCfg) error {
	if err := NameValidator(string(cfg.Id)); err != nil {
		return err
	}
	if !central.IsNode(cfg.Id) {
		return fmt.Errorf("node %s is not part of the network", cfg.Id)
	}
	for _, p := range cfg.Probes {
		if !central.IsNode(p) {
			return fmt.Errorf("probe target %s is not part of the network", p)
		}
		if p == cfg.Id {
			return fmt.Errorf("node %s cannot probe itself", p)
		}
	}
	if cfg.ProbeInterval < 0 {
		return fmt.Errorf("probe interval must not be negative")
	}
	if cfg.LogPath != "" {
		return PathValidator(cfg.LogPath)
	}
	return nil
}

func CentralConfigValidator(cfg *CentralCfg) error {
	ids := make([]NodeId, 0, len(cfg.Nodes))
	addrs := make(map[string]NodeId)
	for _, node := range cfg.Nodes {
		if err := NodeConfigValidator(&node); err != nil {
			return err
		}
		if slices.Contains(ids, node.Id) {
			return fmt.Errorf("duplicate node id: %s", node.Id)
		}
		if other, ok := addrs[node.Address.String()]; ok {
			return fmt.Errorf("nodes %s and %s share address %s", other, node.Id, node.Address)
		}
		ids = append(ids, node.Id)
		addrs[node.Address.String()] = node.Id
	}
	if _, err := cfg.Edges(); err != nil {
		return fmt.Errorf("invalid graph: %w", err)
	}
	return DsrConfigValidator(cfg.Dsr.WithDefaults())
}

// DsrConfigValidator checks a config that already had WithDefaults applied
func DsrConfigValidator(cfg DsrCfg) error {
	if cfg.RequestPeriod > cfg.MaxRequestPeriod {
		return fmt.Errorf("request_period %s exceeds max_request_period %s", cfg.RequestPeriod, cfg.MaxRequestPeriod)
	}
	if cfg.RreqRetries < 1 {
		return fmt.Errorf("rreq_retries must be at least 1")
	}
	if cfg.MaxMaintRexmt == nil || *cfg.MaxMaintRexmt < 0 {
		return fmt.Errorf("max_maint_rexmt must be set and not negative")
	}
	if cfg.TryPassiveAcks == nil || *cfg.TryPassiveAcks < 0 {
		return fmt.Errorf("try_passive_acks must be set and not negative")
	}
	if cfg.MaxSendBuffLen < 1 || cfg.MaxMaintainLen < 1 || cfg.MaxCacheLen < 1 || cfg.MaxEntriesEachDst < 1 {
		return fmt.Errorf("buffer and cache bounds must be positive")
	}
	if cfg.RequestTableSize < 1 || cfg.RequestTableIds < 1 || cfg.GraReplyTableSize < 1 {
		return fmt.Errorf("table sizes must be positive")
	}
	if cfg.MaxRreqId < 1 {
		return fmt.Errorf("max_rreq_id must be positive")
	}
	if cfg.CacheType != PathCacheType {
		return fmt.Errorf("cache_type %q is not supported, only %q is", cfg.CacheType, PathCacheType)
	}
	for name, d := range map[string]int64{
		"node_traversal_time": int64(cfg.NodeTraversalTime),
		"send_buff_interval":  int64(cfg.SendBuffInterval),
		"passive_ack_timeout": int64(cfg.PassiveAckTimeout),
		"broadcast_jitter":    int64(cfg.BroadcastJitter),
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
