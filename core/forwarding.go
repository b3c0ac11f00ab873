package core

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
)

// DataPacket is a data packet about to be transmitted by the node at Route[Pos].
// Route is the full source route, starting at Source.
type DataPacket struct {
	Source      netip.Addr
	Destination netip.Addr
	Route       []netip.Addr
	Pos         int
	Salvage     uint8
	TTL         uint8
	NextHeader  uint8
	Payload     []byte
}

// Send is the upper-layer entry point. Packets without a cached route wait in the send buffer
// while the destination is discovered.
func (d *Dsr) Send(dst netip.Addr, nextHeader uint8, payload []byte) error {
	if dst == d.self {
		return fmt.Errorf("cannot send to the local node %s", dst)
	}
	if route, ok := d.cache.Lookup(dst); ok {
		return d.SendPacket(DataPacket{
			Source:      d.self,
			Destination: dst,
			Route:       route,
			TTL:         state.DataTTL,
			NextHeader:  nextHeader,
			Payload:     payload,
		})
	}
	d.bufferPacket(state.SendBufferEntry{
		Payload:     slices.Clone(payload),
		Destination: dst,
		NextHeader:  nextHeader,
	})
	return nil
}

func (d *Dsr) bufferPacket(e state.SendBufferEntry) {
	if evicted, full := d.sendBuf.Enqueue(e); full {
		d.Log(PacketDropped, "send buffer full", "dst", evicted.Destination, "len", len(evicted.Payload))
	}
	d.Log(PacketBuffered, "awaiting route", "dst", e.Destination, "len", len(e.Payload))
	if _, pending := d.rreq.Get(e.Destination); !pending {
		d.SendInitialRequest(e.Destination)
	}
}

// SendPacket transmits p to the next hop on its route and tracks it until the next hop confirms receipt
func (d *Dsr) SendPacket(p DataPacket) error {
	if p.Pos < 0 || p.Pos >= len(p.Route)-1 || p.Route[p.Pos] != d.self {
		return fmt.Errorf("%s is not a relay on route %v", d.self, p.Route)
	}
	if err := state.ValidatePath(p.Route[0], p.Route); err != nil {
		return err
	}
	nextHop := p.Route[p.Pos+1]
	e := &state.MaintainBuffEntry{
		Key: state.PacketKey{
			AckId:       d.nextAckId(),
			OurAddr:     d.self,
			NextHop:     nextHop,
			Source:      p.Source,
			Destination: p.Destination,
			SegsLeft:    uint8(len(p.Route) - 2 - p.Pos),
		},
		Payload:    p.Payload,
		NextHeader: p.NextHeader,
		Route:      p.Route,
		Salvage:    p.Salvage,
		TTL:        p.TTL,
	}
	if err := d.maintBuf.Add(e); err != nil {
		d.Log(PacketDropped, "cannot track packet", "dst", p.Destination, "error", err)
		return err
	}
	if p.Source == d.self {
		d.Log(DataSent, "data packet", "dst", p.Destination, "route", p.Route, "len", len(p.Payload))
	}
	d.transmitMaintained(e)
	return nil
}

// PacketNewRoute resends a packet originated here after its route failed.
// Without an alternate route the packet returns to the send buffer and discovery starts.
func (d *Dsr) PacketNewRoute(e *state.MaintainBuffEntry) {
	dst := e.Key.Destination
	if route, ok := d.cache.Lookup(dst); ok {
		err := d.SendPacket(DataPacket{
			Source:      d.self,
			Destination: dst,
			Route:       route,
			TTL:         state.DataTTL,
			NextHeader:  e.NextHeader,
			Payload:     e.Payload,
		})
		if err == nil {
			return
		}
	}
	d.bufferPacket(state.SendBufferEntry{
		Payload:     e.Payload,
		Destination: dst,
		NextHeader:  e.NextHeader,
	})
}

// transmitMaintained sends e once more and arms the matching acknowledgment wait.
// A link layer acknowledgment is final. Otherwise the first TryPassiveAcks transmissions
// rely on overhearing the next hop, later ones request a network acknowledgment.
// A next hop the link has no connection to is broken at once.
func (d *Dsr) transmitMaintained(e *state.MaintainBuffEntry) {
	e.TxCount++
	e.SentAt = d.sched.Now()
	if d.cfg.LinkAcknowledgment {
		if err := d.transmitEntry(e); err != nil {
			d.NotifyLinkBreak(e.Key.NextHop)
			return
		}
		d.confirm(e)
		return
	}
	passive := e.Key.NextHop != e.Key.Destination && e.TxCount <= *d.cfg.TryPassiveAcks
	if !passive {
		e.NetworkAck = true
	}
	if err := d.transmitEntry(e); errors.Is(err, state.ErrNotNeighbour) {
		d.NotifyLinkBreak(e.Key.NextHop)
		return
	}
	// other failures may be transient, the acknowledgment wait decides
	d.SchedulePacketRetry(e, passive)
}

func (d *Dsr) transmitEntry(e *state.MaintainBuffEntry) error {
	sr := protocol.NewSourceRoute(e.Route, e.Salvage)
	sr.SegmentsLeft = e.Key.SegsLeft
	var opts []protocol.Option
	if e.NetworkAck {
		opts = d.AddAckReqHeader(opts, e.Key.AckId)
	}
	opts = append(opts, sr)
	buf, err := protocol.EncodeOptions(opts...)
	if err != nil {
		d.Log(InconsistentState, "cannot encode data packet", "key", e.Key, "error", err)
		return err
	}
	return d.transmit(&protocol.Frame{
		To:          e.Key.NextHop,
		TTL:         e.TTL,
		NextHeader:  e.NextHeader,
		Source:      e.Key.Source,
		Destination: e.Key.Destination,
		Options:     buf,
		Payload:     e.Payload,
	})
}

func (d *Dsr) AddAckReqHeader(opts []protocol.Option, id uint16) []protocol.Option {
	return append(opts, protocol.AckRequest{Id: id})
}

func (d *Dsr) retryInterval(txCount int) time.Duration {
	return 2*d.cfg.NodeTraversalTime + d.cfg.RetransIncr*time.Duration(txCount-1)
}

// SchedulePacketRetry arms the acknowledgment wait for the last transmission of e
func (d *Dsr) SchedulePacketRetry(e *state.MaintainBuffEntry, passive bool) {
	key := e.Key
	if passive {
		d.passiveAckTimer.Schedule(key, d.cfg.PassiveAckTimeout, func() {
			d.PacketScheduleTimerExpire(key, true)
		})
		return
	}
	d.addressForwardTimer.Schedule(key, d.retryInterval(e.TxCount), func() {
		d.PacketScheduleTimerExpire(key, false)
	})
}

// PacketScheduleTimerExpire retransmits an unconfirmed packet, or declares the next hop
// unreachable once MaxMaintRexmt retransmissions went unanswered
func (d *Dsr) PacketScheduleTimerExpire(key state.PacketKey, passive bool) {
	e, ok := d.maintBuf.Get(key)
	if !ok {
		return
	}
	if passive {
		d.addressForwardTimer.Cancel(key)
	} else {
		d.passiveAckTimer.Cancel(key)
	}
	if e.TxCount > *d.cfg.MaxMaintRexmt {
		d.NotifyLinkBreak(key.NextHop)
		return
	}
	d.Log(Retransmit, "unconfirmed", "key", key, "attempt", e.TxCount+1)
	d.transmitMaintained(e)
}

// HandleAck confirms the packet matched by a network acknowledgment. Late or repeated
// acknowledgments find no entry and are ignored.
func (d *Dsr) HandleAck(ack protocol.Ack) {
	e, ok := d.maintBuf.FindNetworkAck(ack.Id, ack.Acker)
	if !ok {
		return
	}
	d.Log(AckReceived, "next hop confirmed", "key", e.Key)
	d.confirm(e)
}

// confirm ends maintenance of e
func (d *Dsr) confirm(e *state.MaintainBuffEntry) {
	d.passiveAckTimer.Cancel(e.Key)
	d.addressForwardTimer.Cancel(e.Key)
	d.maintBuf.Remove(e.Key)
	if idx := slices.Index(e.Route, d.self); idx >= 0 {
		d.cache.UseExtends(e.Route[idx:])
	}
}

// CancelPacketTimerNextHop stops maintenance of every packet sent to nextHop and returns them
func (d *Dsr) CancelPacketTimerNextHop(nextHop netip.Addr) []*state.MaintainBuffEntry {
	entries := d.maintBuf.ByNextHop(nextHop)
	for _, e := range entries {
		d.passiveAckTimer.Cancel(e.Key)
		d.addressForwardTimer.Cancel(e.Key)
		d.maintBuf.Remove(e.Key)
	}
	return entries
}

// SalvagePacket reroutes a relayed packet over an alternate cached route
func (d *Dsr) SalvagePacket(e *state.MaintainBuffEntry) bool {
	if e.Salvage >= d.cfg.MaxSalvageCount {
		return false
	}
	alt, ok := d.cache.Lookup(e.Key.Destination)
	if !ok {
		return false
	}
	route := append([]netip.Addr{e.Key.Source}, alt...)
	err := d.SendPacket(DataPacket{
		Source:      e.Key.Source,
		Destination: e.Key.Destination,
		Route:       route,
		Pos:         1,
		Salvage:     e.Salvage + 1,
		TTL:         e.TTL,
		NextHeader:  e.NextHeader,
		Payload:     e.Payload,
	})
	if err != nil {
		return false
	}
	d.Log(PacketSalvaged, "rerouted", "src", e.Key.Source, "dst", e.Key.Destination, "route", alt, "salvage", e.Salvage+1)
	return true
}

// forward relays a packet whose source route names this node as the current receiver
func (d *Dsr) forward(pkt *InboundPacket) {
	f := pkt.Frame
	if f.TTL <= 1 {
		d.Log(PacketDropped, "hop limit exceeded", "src", f.Source, "dst", f.Destination)
		return
	}
	sr := *pkt.Route
	if !f.IsData() {
		d.ForwardErrPacket(pkt)
		return
	}
	route := sr.Path(f.Source, f.Destination)
	pos := sr.Position() + 1
	if sr.Salvage == 0 {
		d.learn(route[pos:])
		d.learn(reversed(route[:pos+1]))
	}
	err := d.SendPacket(DataPacket{
		Source:      f.Source,
		Destination: f.Destination,
		Route:       route,
		Pos:         pos,
		Salvage:     sr.Salvage,
		TTL:         f.TTL - 1,
		NextHeader:  f.NextHeader,
		Payload:     f.Payload,
	})
	if err != nil {
		d.Log(PacketDropped, "cannot relay", "src", f.Source, "dst", f.Destination, "error", err)
		return
	}
	d.Log(DataForwarded, "relayed", "src", f.Source, "dst", f.Destination, "next", route[pos+1])
}
