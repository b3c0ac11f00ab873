package state

import (
	"bytes"
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"time"
)

// PacketKey identifies a packet awaiting hop-by-hop confirmation
type PacketKey struct {
	AckId       uint16
	OurAddr     netip.Addr
	NextHop     netip.Addr
	Source      netip.Addr
	Destination netip.Addr
	SegsLeft    uint8 // segments left in the transmitted source route
}

func (k PacketKey) Compare(o PacketKey) int {
	return cmp.Or(
		k.NextHop.Compare(o.NextHop),
		k.Source.Compare(o.Source),
		k.Destination.Compare(o.Destination),
		cmp.Compare(k.AckId, o.AckId),
		k.OurAddr.Compare(o.OurAddr),
		cmp.Compare(k.SegsLeft, o.SegsLeft),
	)
}

func (k PacketKey) String() string {
	return fmt.Sprintf("#%d %s->%s via %s", k.AckId, k.Source, k.Destination, k.NextHop)
}

type MaintainBuffEntry struct {
	Key        PacketKey
	Payload    []byte
	NextHeader uint8
	Route      []netip.Addr // full route, source to destination
	Salvage    uint8
	TTL        uint8
	TxCount    int
	SentAt     time.Time
	ExpireAt   time.Time
	NetworkAck bool // an ACK_REQ was attached to the last transmission
}

// MaintainBuffer owns the payload copies of packets awaiting confirmation
type MaintainBuffer struct {
	clk     TimeSource
	maxLen  int
	timeout time.Duration
	entries map[PacketKey]*MaintainBuffEntry
}

func NewMaintainBuffer(clk TimeSource, cfg DsrCfg) *MaintainBuffer {
	return &MaintainBuffer{
		clk:     clk,
		maxLen:  cfg.MaxMaintainLen,
		timeout: cfg.MaxMaintainTime,
		entries: make(map[PacketKey]*MaintainBuffEntry),
	}
}

func (m *MaintainBuffer) Add(e *MaintainBuffEntry) error {
	if _, ok := m.entries[e.Key]; ok {
		return fmt.Errorf("packet %s is already tracked", e.Key)
	}
	if len(m.entries) >= m.maxLen {
		return fmt.Errorf("maintenance of %s: %w", e.Key, ErrBufferFull)
	}
	e.Payload = bytes.Clone(e.Payload)
	e.Route = slices.Clone(e.Route)
	e.ExpireAt = m.clk.Now().Add(m.timeout)
	m.entries[e.Key] = e
	return nil
}

func (m *MaintainBuffer) Get(k PacketKey) (*MaintainBuffEntry, bool) {
	e, ok := m.entries[k]
	return e, ok
}

func (m *MaintainBuffer) Remove(k PacketKey) bool {
	_, ok := m.entries[k]
	delete(m.entries, k)
	return ok
}

// FindNetworkAck finds the entry acknowledged by an ACK with id sent by acker
func (m *MaintainBuffer) FindNetworkAck(id uint16, acker netip.Addr) (*MaintainBuffEntry, bool) {
	for _, e := range m.entries {
		if e.NetworkAck && e.Key.AckId == id && e.Key.NextHop == acker {
			return e, true
		}
	}
	return nil, false
}

// FindPassive finds the entry matched by overhearing transmitter relay a packet.
// segsLeft is the value in the overheard source route, one less than what we sent.
func (m *MaintainBuffer) FindPassive(src, dst, transmitter netip.Addr, segsLeft uint8, payload []byte) (*MaintainBuffEntry, bool) {
	for _, k := range m.Keys() {
		e := m.entries[k]
		if k.NextHop == transmitter && k.Source == src && k.Destination == dst &&
			k.SegsLeft == segsLeft+1 && bytes.Equal(e.Payload, payload) {
			return e, true
		}
	}
	return nil, false
}

// ByNextHop returns the entries sent to nextHop in key order
func (m *MaintainBuffer) ByNextHop(nextHop netip.Addr) []*MaintainBuffEntry {
	out := make([]*MaintainBuffEntry, 0)
	for _, k := range m.Keys() {
		if k.NextHop == nextHop {
			out = append(out, m.entries[k])
		}
	}
	return out
}

func (m *MaintainBuffer) Keys() []PacketKey {
	keys := make([]PacketKey, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, PacketKey.Compare)
	return keys
}

// Purge removes and returns the entries older than MaxMaintainTime
func (m *MaintainBuffer) Purge() []*MaintainBuffEntry {
	now := m.clk.Now()
	out := make([]*MaintainBuffEntry, 0)
	for _, k := range m.Keys() {
		if e := m.entries[k]; !now.Before(e.ExpireAt) {
			out = append(out, e)
			delete(m.entries, k)
		}
	}
	return out
}

func (m *MaintainBuffer) Len() int {
	return len(m.entries)
}
