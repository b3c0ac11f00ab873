package core

import (
	"net/netip"
	"slices"

	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
)

// NotifyLinkBreak handles an unreachable next hop, detected by exhausted maintenance or the link layer.
// Every packet in flight to nextHop is salvaged or reported to its source.
func (d *Dsr) NotifyLinkBreak(nextHop netip.Addr) {
	n := d.cache.InvalidateLink(d.self, nextHop)
	d.rreq.Blacklist(nextHop)
	d.Log(LinkBroken, "next hop unreachable", "next", nextHop, "invalidated", n)
	for _, e := range d.CancelPacketTimerNextHop(nextHop) {
		if e.Key.Source == d.self {
			d.PacketNewRoute(e)
			d.SendUnreachError(e)
			continue
		}
		if !d.SalvagePacket(e) {
			d.SendUnreachError(e)
		}
	}
}

// SendUnreachError reports the failed link of e to the packet's source
func (d *Dsr) SendUnreachError(e *state.MaintainBuffEntry) {
	rerr := protocol.RouteError{
		Type:        protocol.ErrNodeUnreachable,
		Salvage:     e.Salvage,
		ErrSrc:      d.self,
		ErrDst:      e.Key.Source,
		Unreachable: e.Key.NextHop,
		OriginalDst: e.Key.Destination,
	}
	if rerr.ErrDst == d.self {
		d.Log(RerrSent, "reported locally", "rerr", rerr)
		d.HandleRouteError(rerr)
		return
	}
	var back []netip.Addr
	if e.Salvage == 0 {
		if idx := slices.Index(e.Route, d.self); idx > 0 {
			back = reversed(e.Route[:idx+1])
		}
	}
	if back == nil {
		if r, ok := d.cache.Lookup(rerr.ErrDst); ok {
			back = r
		}
	}
	if back == nil {
		d.SendErrorRequest(rerr)
		return
	}
	if err := d.sendControl(back, rerr); err != nil {
		d.Log(InconsistentState, "cannot send route error", "rerr", rerr, "error", err)
		return
	}
	d.Log(RerrSent, "route error", "rerr", rerr, "route", back)
}

// SendErrorRequest piggybacks rerr on a route request for its destination
func (d *Dsr) SendErrorRequest(rerr protocol.RouteError) {
	id := d.rreq.NextId()
	d.rreq.MarkSeen(d.self, id)
	req := protocol.RouteRequest{Id: id, Target: rerr.ErrDst, Addresses: []netip.Addr{d.self}}
	if err := d.broadcastRequest(req, d.cfg.DiscoveryHopLimit, rerr); err != nil {
		return
	}
	d.Log(RerrSent, "route error with request", "rerr", rerr, "id", id)
}

// HandleRouteError invalidates the reported link. At the error destination, discovery restarts
// for the original destination when packets for it are still queued.
func (d *Dsr) HandleRouteError(rerr protocol.RouteError) {
	if rerr.Type != protocol.ErrNodeUnreachable {
		return
	}
	n := d.cache.InvalidateLink(rerr.ErrSrc, rerr.Unreachable)
	if rerr.ErrDst != d.self {
		return
	}
	d.Log(RerrReceived, "link broken", "rerr", rerr, "invalidated", n)
	dst := rerr.OriginalDst
	if !d.sendBuf.Find(dst) {
		return
	}
	if _, ok := d.cache.Lookup(dst); ok {
		d.SendPacketFromBuffer(dst)
		return
	}
	if _, pending := d.rreq.Get(dst); !pending {
		d.SendInitialRequest(dst)
	}
}

// ForwardErrPacket relays a control packet along its source route.
// Acknowledgment requests are hop-by-hop and are not relayed.
func (d *Dsr) ForwardErrPacket(pkt *InboundPacket) {
	sr := pkt.Route.Advance()
	opts := make([]protocol.Option, 0, len(pkt.Decoded))
	for _, opt := range pkt.Decoded {
		switch opt.OptionType() {
		case protocol.OptAckReq, protocol.OptSourceRoute, protocol.OptPad1, protocol.OptPadN:
			continue
		}
		opts = append(opts, opt)
	}
	opts = append(opts, sr)
	buf, err := protocol.EncodeOptions(opts...)
	if err != nil {
		d.Log(InconsistentState, "cannot encode relayed packet", "error", err)
		return
	}
	next := sr.Receiver(pkt.Destination)
	err = d.transmit(&protocol.Frame{
		To:          next,
		TTL:         pkt.TTL - 1,
		NextHeader:  pkt.NextHeader,
		Source:      pkt.Source,
		Destination: pkt.Destination,
		Options:     buf,
	})
	if err != nil {
		return
	}
	if pkt.Rerr != nil {
		d.Log(RerrForwarded, "relayed route error", "rerr", *pkt.Rerr, "next", next)
	}
}
