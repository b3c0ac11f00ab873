package protocol

import (
	"fmt"
	"net/netip"
	"slices"
)

// Option is a decoded DSR option. The concrete type is selected by OptionType.
type Option interface {
	OptionType() uint8
}

type Pad1 struct{}

type PadN struct {
	Len uint8
}

// RouteRequest floods towards Target, accumulating the traversed nodes in Addresses.
// Addresses[0] is always the originator.
type RouteRequest struct {
	Id        uint16
	Target    netip.Addr
	Addresses []netip.Addr
}

// RouteReply carries a complete route, from the requester to the target.
type RouteReply struct {
	Addresses []netip.Addr
}

type RouteError struct {
	Type        uint8
	Salvage     uint8
	ErrSrc      netip.Addr
	ErrDst      netip.Addr
	Unreachable netip.Addr
	OriginalDst netip.Addr
}

type AckRequest struct {
	Id uint16
}

type Ack struct {
	Id        uint16
	Acker     netip.Addr
	Requester netip.Addr
}

// SourceRoute lists the intermediate hops between the frame's source and destination.
// SegmentsLeft counts the listed hops not yet reached, including the receiver of the
// current transmission when it is one of them.
type SourceRoute struct {
	Salvage      uint8
	SegmentsLeft uint8
	Addresses    []netip.Addr
}

func (Pad1) OptionType() uint8         { return OptPad1 }
func (PadN) OptionType() uint8         { return OptPadN }
func (RouteRequest) OptionType() uint8 { return OptRouteReq }
func (RouteReply) OptionType() uint8   { return OptRouteReply }
func (RouteError) OptionType() uint8   { return OptRouteError }
func (AckRequest) OptionType() uint8   { return OptAckReq }
func (Ack) OptionType() uint8          { return OptAck }
func (SourceRoute) OptionType() uint8  { return OptSourceRoute }

// NewSourceRoute builds the option for a full path [src, hops..., dst] as seen by path[0].
func NewSourceRoute(path []netip.Addr, salvage uint8) SourceRoute {
	var hops []netip.Addr
	if len(path) > 2 {
		hops = slices.Clone(path[1 : len(path)-1])
	}
	return SourceRoute{
		Salvage:      salvage,
		SegmentsLeft: uint8(len(hops)),
		Addresses:    hops,
	}
}

// Validate checks that SegmentsLeft is consistent with the address list.
func (sr SourceRoute) Validate() error {
	if int(sr.SegmentsLeft) > len(sr.Addresses) {
		return fmt.Errorf("%w: segments left %d exceeds %d addresses", ErrMalformed, sr.SegmentsLeft, len(sr.Addresses))
	}
	return nil
}

// Receiver returns the hop this transmission is addressed to. dst is the frame's final destination.
func (sr SourceRoute) Receiver(dst netip.Addr) netip.Addr {
	if sr.SegmentsLeft == 0 {
		return dst
	}
	return sr.Addresses[len(sr.Addresses)-int(sr.SegmentsLeft)]
}

// Advance returns the option as it should be relayed by the current receiver.
func (sr SourceRoute) Advance() SourceRoute {
	out := sr
	out.Addresses = slices.Clone(sr.Addresses)
	if out.SegmentsLeft > 0 {
		out.SegmentsLeft--
	}
	return out
}

// Path reconstructs the full route [src, hops..., dst].
func (sr SourceRoute) Path(src, dst netip.Addr) []netip.Addr {
	path := make([]netip.Addr, 0, len(sr.Addresses)+2)
	path = append(path, src)
	path = append(path, sr.Addresses...)
	return append(path, dst)
}

// Position returns the index in Path(src, dst) of the node transmitting this option.
func (sr SourceRoute) Position() int {
	return len(sr.Addresses) - int(sr.SegmentsLeft)
}

func (r RouteRequest) String() string {
	return fmt.Sprintf("(id: %d, target: %s, path: %v)", r.Id, r.Target, r.Addresses)
}

func (r RouteError) String() string {
	return fmt.Sprintf("(%s -> %s unreachable: %s, dst: %s, salvage: %d)", r.ErrSrc, r.ErrDst, r.Unreachable, r.OriginalDst, r.Salvage)
}

func (sr SourceRoute) String() string {
	return fmt.Sprintf("(hops: %v, left: %d, salvage: %d)", sr.Addresses, sr.SegmentsLeft, sr.Salvage)
}
