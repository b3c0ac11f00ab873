package core

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/skein/protocol"
)

// OptionHandler decodes one option type and applies it to the packet being processed
type OptionHandler interface {
	protocol.Codec
	Apply(d *Dsr, pkt *InboundPacket, opt protocol.Option) error
}

// InboundPacket carries the per-packet state accumulated while its options are processed
type InboundPacket struct {
	*protocol.Frame
	Decoded    []protocol.Option
	Consumed   int
	Dropped    bool
	DropReason string
	// set by the source route handler when this node must deliver or relay the packet
	Route *protocol.SourceRoute
	// set by the route error handler, the packet is relayed as an error packet
	Rerr *protocol.RouteError
}

func (p *InboundPacket) drop(reason string, args ...any) {
	p.Dropped = true
	p.DropReason = fmt.Sprintf(reason, args...)
}

// Insert registers a handler. The first handler registered for a type takes precedence.
func (d *Dsr) Insert(h OptionHandler) {
	d.handlers = append(d.handlers, h)
}

func (d *Dsr) GetOption(optType uint8) OptionHandler {
	for _, h := range d.handlers {
		if h.Type() == optType {
			return h
		}
	}
	return nil
}

func codecOf(t uint8) protocol.Codec {
	c, ok := protocol.CodecFor(t)
	if !ok {
		panic(fmt.Sprintf("no codec for option %d", t))
	}
	return c
}

func (d *Dsr) registerHandlers() {
	d.Insert(padHandler{codecOf(protocol.OptPad1)})
	d.Insert(padHandler{codecOf(protocol.OptPadN)})
	d.Insert(rerrHandler{codecOf(protocol.OptRouteError)})
	d.Insert(rreqHandler{codecOf(protocol.OptRouteReq)})
	d.Insert(rrepHandler{codecOf(protocol.OptRouteReply)})
	d.Insert(ackReqHandler{codecOf(protocol.OptAckReq)})
	d.Insert(ackHandler{codecOf(protocol.OptAck)})
	d.Insert(srHandler{codecOf(protocol.OptSourceRoute)})
}

// Process applies every option of the packet in order and returns the number of option bytes consumed.
// The packet is marked dropped at the first option that is unknown, malformed or rejected.
func (d *Dsr) Process(pkt *InboundPacket) int {
	data := pkt.Options
	for pkt.Consumed < len(data) && !pkt.Dropped {
		h := d.GetOption(data[pkt.Consumed])
		if h == nil {
			pkt.drop("unknown option %d at offset %d", data[pkt.Consumed], pkt.Consumed)
			break
		}
		opt, n, err := h.Decode(data[pkt.Consumed:])
		if err != nil {
			pkt.drop("decode %s: %v", protocol.OptionName(h.Type()), err)
			break
		}
		if pkt.Consumed+n > len(data) {
			pkt.drop("%s overruns the option area", protocol.OptionName(h.Type()))
			break
		}
		pkt.Consumed += n
		pkt.Decoded = append(pkt.Decoded, opt)
		if err = h.Apply(d, pkt, opt); err != nil {
			pkt.drop("%s: %v", protocol.OptionName(h.Type()), err)
		}
	}
	return pkt.Consumed
}

type padHandler struct{ protocol.Codec }

func (padHandler) Apply(*Dsr, *InboundPacket, protocol.Option) error { return nil }

type rreqHandler struct{ protocol.Codec }

func (rreqHandler) Apply(d *Dsr, pkt *InboundPacket, opt protocol.Option) error {
	d.HandleRequest(pkt, opt.(protocol.RouteRequest))
	return nil
}

type rrepHandler struct{ protocol.Codec }

func (rrepHandler) Apply(d *Dsr, pkt *InboundPacket, opt protocol.Option) error {
	return d.HandleReply(pkt, opt.(protocol.RouteReply))
}

type rerrHandler struct{ protocol.Codec }

func (rerrHandler) Apply(d *Dsr, pkt *InboundPacket, opt protocol.Option) error {
	rerr := opt.(protocol.RouteError)
	pkt.Rerr = &rerr
	d.HandleRouteError(rerr)
	return nil
}

type ackReqHandler struct{ protocol.Codec }

func (ackReqHandler) Apply(d *Dsr, pkt *InboundPacket, opt protocol.Option) error {
	req := opt.(protocol.AckRequest)
	ack := protocol.Ack{Id: req.Id, Acker: d.self, Requester: pkt.From}
	if err := d.sendControl([]netip.Addr{d.self, pkt.From}, ack); err != nil {
		return err
	}
	d.Log(AckSent, "acknowledged packet", "id", req.Id, "to", pkt.From)
	return nil
}

type ackHandler struct{ protocol.Codec }

func (ackHandler) Apply(d *Dsr, pkt *InboundPacket, opt protocol.Option) error {
	ack := opt.(protocol.Ack)
	if ack.Requester != d.self {
		return nil
	}
	d.HandleAck(ack)
	return nil
}

type srHandler struct{ protocol.Codec }

func (srHandler) Apply(d *Dsr, pkt *InboundPacket, opt protocol.Option) error {
	sr := opt.(protocol.SourceRoute)
	if pkt.To == protocol.Broadcast {
		return fmt.Errorf("source route on a broadcast frame")
	}
	if recv := sr.Receiver(pkt.Destination); recv != d.self {
		return fmt.Errorf("addressed to %s but source route selects %s", d.self, recv)
	}
	pkt.Route = &sr
	return nil
}
