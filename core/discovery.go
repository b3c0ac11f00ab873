package core

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
)

// SendInitialRequest starts discovery for dst with a non-propagating request to the direct neighbours
func (d *Dsr) SendInitialRequest(dst netip.Addr) {
	d.addressReqTimer.Cancel(dst)
	id, _ := d.recordAttempt(dst, 1)
	d.rreq.MarkSeen(d.self, id)
	req := protocol.RouteRequest{Id: id, Target: dst, Addresses: []netip.Addr{d.self}}
	if err := d.broadcastRequest(req, 1); err == nil {
		d.Log(RequestSent, "non-propagating request", "dst", dst, "id", id)
	}
	d.nonPropReqTimer.Schedule(dst, d.cfg.NonpropRequestTimeout, func() {
		d.RouteRequestTimerExpire(dst)
	})
}

// SendRequest floods a propagating request for dst. The hop limit grows with every attempt.
func (d *Dsr) SendRequest(dst netip.Addr) {
	ttl := d.requestTtl(d.rreq.Retries(dst))
	id, attempts := d.recordAttempt(dst, ttl)
	d.rreq.MarkSeen(d.self, id)
	req := protocol.RouteRequest{Id: id, Target: dst, Addresses: []netip.Addr{d.self}}
	if err := d.broadcastRequest(req, ttl); err == nil {
		d.Log(RequestSent, "propagating request", "dst", dst, "id", id, "ttl", ttl, "attempt", attempts)
	}
	d.ScheduleRreqRetry(dst, attempts)
}

// recordAttempt registers a request for dst. A destination evicted from the full request
// table gives up discovery, so its timers never outlive its record.
func (d *Dsr) recordAttempt(dst netip.Addr, ttl uint8) (uint16, int) {
	id, attempts, evicted := d.rreq.RecordAttempt(dst, ttl)
	if evicted.IsValid() {
		d.abandonDiscovery(evicted, "evicted from request table")
	}
	return id, attempts
}

func (d *Dsr) requestTtl(prior int) uint8 {
	limit := d.cfg.DiscoveryHopLimit
	if prior >= 8 {
		return limit
	}
	return uint8(min(int(limit), 2<<prior))
}

// ScheduleRreqRetry arms the retry timer after the given number of attempts.
// The period doubles with each propagating attempt, bounded by MaxRequestPeriod.
func (d *Dsr) ScheduleRreqRetry(dst netip.Addr, attempts int) {
	period := d.cfg.RequestPeriod
	for i := 2; i < attempts && period < d.cfg.MaxRequestPeriod; i++ {
		period *= 2
	}
	period = min(period, d.cfg.MaxRequestPeriod)
	d.addressReqTimer.Schedule(dst, period, func() {
		d.RouteRequestTimerExpire(dst)
	})
}

func (d *Dsr) RouteRequestTimerExpire(dst netip.Addr) {
	if _, pending := d.rreq.Get(dst); !pending {
		d.cancelDiscovery(dst)
		return
	}
	if _, ok := d.cache.Lookup(dst); ok {
		d.cancelDiscovery(dst)
		d.SendPacketFromBuffer(dst)
		return
	}
	if !d.sendBuf.Find(dst) {
		d.cancelDiscovery(dst)
		return
	}
	if retries := d.rreq.Retries(dst); retries >= d.cfg.RreqRetries {
		d.abandonDiscovery(dst, "no route found", "attempts", retries)
		return
	}
	d.SendRequest(dst)
}

// abandonDiscovery drops every packet queued for dst and returns it to idle
func (d *Dsr) abandonDiscovery(dst netip.Addr, reason string, args ...any) {
	d.Log(DiscoveryExhausted, reason, append([]any{"dst", dst}, args...)...)
	for _, e := range d.sendBuf.DropPacketWithDst(dst) {
		d.Log(PacketDropped, "destination unreachable", "dst", e.Destination, "len", len(e.Payload))
	}
	d.cancelDiscovery(dst)
}

// cancelDiscovery returns dst to idle, where it has no request record and no armed timer.
// It reports whether discovery was pending.
func (d *Dsr) cancelDiscovery(dst netip.Addr) bool {
	_, pending := d.rreq.Get(dst)
	d.nonPropReqTimer.Cancel(dst)
	d.addressReqTimer.Cancel(dst)
	d.rreq.Clear(dst)
	return pending
}

func (d *Dsr) broadcastRequest(req protocol.RouteRequest, ttl uint8, prefix ...protocol.Option) error {
	opts := append(slices.Clone(prefix), req)
	buf, err := protocol.EncodeOptions(opts...)
	if err != nil {
		d.Log(InconsistentState, "cannot encode request", "req", req, "error", err)
		return err
	}
	return d.transmit(&protocol.Frame{
		To:          protocol.Broadcast,
		TTL:         ttl,
		NextHeader:  protocol.NoNextHeader,
		Source:      d.self,
		Destination: req.Target,
		Options:     buf,
	})
}

// HandleRequest processes a route request received from a neighbour
func (d *Dsr) HandleRequest(pkt *InboundPacket, req protocol.RouteRequest) {
	src := req.Addresses[0]
	switch {
	case src == d.self:
		return
	case d.rreq.IsBlacklisted(pkt.From):
		d.Log(RequestDropped, "transmitter is blacklisted", "from", pkt.From, "id", req.Id)
		return
	case slices.Contains(req.Addresses, d.self):
		d.Log(RequestDropped, "already in accumulated route", "src", src, "id", req.Id)
		return
	case d.rreq.HasSeen(src, req.Id):
		d.Log(RequestDropped, "duplicate request", "src", src, "id", req.Id)
		return
	}
	d.rreq.MarkSeen(src, req.Id)

	path := append(slices.Clone(req.Addresses), d.self)
	d.learn(reversed(path))
	if req.Target == d.self {
		d.SendReply(path, len(path)-1)
		return
	}
	if cached, ok := d.cache.Lookup(req.Target); ok {
		full := append(slices.Clone(path), cached[1:]...)
		if state.ValidatePath(src, full) == nil {
			d.scheduleCachedReply(state.RequestKey{Src: src, Id: req.Id}, full, len(path)-1)
			return
		}
	}
	if pkt.TTL <= 1 {
		d.Log(RequestDropped, "hop limit reached", "src", src, "id", req.Id)
		return
	}
	req.Addresses = path
	var prefix []protocol.Option
	if pkt.Rerr != nil {
		prefix = append(prefix, *pkt.Rerr)
	}
	d.ScheduleInterRequest(req, pkt.TTL-1, prefix...)
}

// ScheduleInterRequest rebroadcasts req after a random delay of up to BroadcastJitter
func (d *Dsr) ScheduleInterRequest(req protocol.RouteRequest, ttl uint8, prefix ...protocol.Option) {
	key := state.RequestKey{Src: req.Addresses[0], Id: req.Id}
	d.interReqTimer.Schedule(key, d.jitter(d.cfg.BroadcastJitter), func() {
		if err := d.broadcastRequest(req, ttl, prefix...); err == nil {
			d.Log(RequestForwarded, "rebroadcast request", "src", key.Src, "id", key.Id, "ttl", ttl)
		}
	})
}

func (d *Dsr) scheduleCachedReply(key state.RequestKey, route []netip.Addr, selfIdx int) {
	dst := route[len(route)-1]
	if d.graReply.FindAndUpdate(key.Src, dst) {
		d.Log(RequestDropped, "cached reply held off", "src", key.Src, "dst", dst)
		return
	}
	d.replyTimer.Schedule(key, d.jitter(d.cfg.BroadcastJitter), func() {
		d.SendReply(route, selfIdx)
	})
}

// SendReply returns route to its first node along the reverse of route[:selfIdx+1]
func (d *Dsr) SendReply(route []netip.Addr, selfIdx int) {
	back := reversed(route[:selfIdx+1])
	if err := d.sendControl(back, protocol.RouteReply{Addresses: route}); err != nil {
		d.Log(InconsistentState, "cannot send reply", "route", route, "error", err)
		return
	}
	d.Log(ReplySent, "route reply", "to", route[0], "route", route)
}

// HandleReply caches the routes a reply reveals. At the requester, discovery for the target ends.
func (d *Dsr) HandleReply(pkt *InboundPacket, rrep protocol.RouteReply) error {
	addrs := rrep.Addresses
	idx := slices.Index(addrs, d.self)
	if idx < 0 {
		return fmt.Errorf("reply route %v does not include %s", addrs, d.self)
	}
	if idx < len(addrs)-1 {
		d.learn(addrs[idx:])
	}
	if idx > 0 {
		d.learn(reversed(addrs[:idx+1]))
	}
	if idx != 0 || pkt.Destination != d.self {
		return nil
	}
	dst := addrs[len(addrs)-1]
	d.Log(ReplyReceived, "route reply", "dst", dst, "route", addrs)
	if d.cancelDiscovery(dst) {
		d.Log(RouteResolved, "discovery complete", "dst", dst)
	}
	d.SendPacketFromBuffer(dst)
	return nil
}

// SendGratuitousReply tells the source of an overheard packet about a shorter route.
// It applies when the local node is listed in the source route after the intended receiver.
func (d *Dsr) SendGratuitousReply(f *protocol.Frame, sr protocol.SourceRoute) {
	path := sr.Path(f.Source, f.Destination)
	txIdx := sr.Position()
	selfIdx := slices.Index(path, d.self)
	if selfIdx <= txIdx+1 || path[txIdx] != f.From {
		return
	}
	if d.graReply.FindAndUpdate(f.Source, f.From) {
		return
	}
	short := append(slices.Clone(path[:txIdx+1]), path[selfIdx:]...)
	back := append([]netip.Addr{d.self}, reversed(path[:txIdx+1])...)
	if err := d.sendControl(back, protocol.RouteReply{Addresses: short}); err != nil {
		d.Log(InconsistentState, "cannot send gratuitous reply", "route", short, "error", err)
		return
	}
	d.Log(GratuitousReply, "shortened route", "to", f.Source, "route", short)
}
