package core

import (
	"net/netip"

	"github.com/encodeous/skein/state"
)

// SendPacketFromBuffer flushes the packets queued for dst once a route is cached
func (d *Dsr) SendPacketFromBuffer(dst netip.Addr) {
	route, ok := d.cache.Lookup(dst)
	if !ok {
		return
	}
	for _, e := range d.sendBuf.Dequeue(dst) {
		err := d.SendPacket(DataPacket{
			Source:      d.self,
			Destination: dst,
			Route:       route,
			TTL:         state.DataTTL,
			NextHeader:  e.NextHeader,
			Payload:     e.Payload,
		})
		if err != nil {
			d.Log(PacketDropped, "cannot send buffered packet", "dst", dst, "error", err)
		}
	}
}

// CheckSendBuffer is the periodic sweep. It expires buffered and unconfirmed packets,
// purges stale table entries, and retries destinations whose route is now known.
func (d *Dsr) CheckSendBuffer() {
	for _, e := range d.sendBuf.Purge() {
		d.Log(PacketDropped, "send buffer timeout", "dst", e.Destination, "len", len(e.Payload))
	}
	for _, e := range d.maintBuf.Purge() {
		d.passiveAckTimer.Cancel(e.Key)
		d.addressForwardTimer.Cancel(e.Key)
		d.Log(PacketDropped, "maintenance timeout", "key", e.Key)
	}
	d.cache.Purge()
	d.rreq.Gc()
	d.graReply.Gc()
	for _, dst := range d.sendBuf.Destinations() {
		if _, ok := d.cache.Lookup(dst); ok {
			d.SendPacketFromBuffer(dst)
		} else if _, pending := d.rreq.Get(dst); !pending {
			d.SendInitialRequest(dst)
		}
	}
	if d.running {
		d.sendBuffTimer.Schedule(struct{}{}, d.cfg.SendBuffInterval, d.CheckSendBuffer)
	}
}
