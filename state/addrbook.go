package state

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// AddressBook translates between node ids, protocol addresses and link endpoints
type AddressBook struct {
	byAddr bart.Table[NodeCfg]
	byId   map[NodeId]NodeCfg
	byLink map[netip.AddrPort]NodeId
}

func NewAddressBook(nodes []NodeCfg) *AddressBook {
	b := &AddressBook{
		byId:   make(map[NodeId]NodeCfg, len(nodes)),
		byLink: make(map[netip.AddrPort]NodeId, len(nodes)),
	}
	for _, n := range nodes {
		b.byAddr.Insert(netip.PrefixFrom(n.Address, n.Address.BitLen()), n)
		b.byId[n.Id] = n
		if n.Endpoint.IsValid() {
			b.byLink[n.Endpoint] = n.Id
		}
	}
	return b
}

func (b *AddressBook) Lookup(addr netip.Addr) (NodeCfg, bool) {
	if !addr.IsValid() {
		return NodeCfg{}, false
	}
	return b.byAddr.Lookup(addr)
}

func (b *AddressBook) AddrOf(id NodeId) (netip.Addr, bool) {
	n, ok := b.byId[id]
	return n.Address, ok
}

// LinkOf returns the link endpoint serving addr
func (b *AddressBook) LinkOf(addr netip.Addr) (netip.AddrPort, bool) {
	n, ok := b.Lookup(addr)
	if !ok || !n.Endpoint.IsValid() {
		return netip.AddrPort{}, false
	}
	return n.Endpoint, true
}

// NodeAt returns the node bound to a link endpoint
func (b *AddressBook) NodeAt(ep netip.AddrPort) (NodeCfg, bool) {
	id, ok := b.byLink[ep]
	if !ok {
		return NodeCfg{}, false
	}
	return b.byId[id], true
}

// Name renders addr for diagnostics, preferring the node id
func (b *AddressBook) Name(addr netip.Addr) string {
	if n, ok := b.Lookup(addr); ok {
		return string(n.Id)
	}
	return addr.String()
}

func (b *AddressBook) Names(path []netip.Addr) []string {
	out := make([]string, len(path))
	for i, a := range path {
		out[i] = b.Name(a)
	}
	return out
}
