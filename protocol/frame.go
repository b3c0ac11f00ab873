package protocol

import (
	"fmt"
	"net"
	"net/netip"
	"slices"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Frame is one DSR transmission: an IPv4 header addressed hop-by-hop, the DSR fixed header
// naming the end-to-end endpoints, the encoded options and the upper-layer payload.
type Frame struct {
	From        netip.Addr
	To          netip.Addr
	TTL         uint8
	NextHeader  uint8
	Source      netip.Addr
	Destination netip.Addr
	Options     []byte
	Payload     []byte
}

var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

func (f *Frame) Marshal() ([]byte, error) {
	for _, a := range []netip.Addr{f.From, f.To, f.Source, f.Destination} {
		if !a.Is4() {
			return nil, fmt.Errorf("%w: %s is not an IPv4 address", ErrMalformed, a)
		}
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      f.TTL,
		Protocol: layers.IPProtocol(ProtocolNumber),
		SrcIP:    net.IP(f.From.AsSlice()),
		DstIP:    net.IP(f.To.AsSlice()),
	}
	dsr := &DSR{
		NextHeader:  f.NextHeader,
		Source:      f.Source.As4(),
		Destination: f.Destination.As4(),
		Options:     f.Options,
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, serializeOpts, ip, dsr, gopacket.Payload(f.Payload))
	if err != nil {
		return nil, fmt.Errorf("serialize frame: %w", err)
	}
	return slices.Clone(buf.Bytes()), nil
}

// ParseFrame decodes the IPv4 and DSR headers. Options are left encoded.
func ParseFrame(data []byte) (*Frame, error) {
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("decode ipv4: %w", err)
	}
	if ip.Protocol != layers.IPProtocol(ProtocolNumber) {
		return nil, fmt.Errorf("%w: ip protocol %d", ErrMalformed, ip.Protocol)
	}
	var dsr DSR
	if err := dsr.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("decode dsr: %w", err)
	}
	from, ok := netip.AddrFromSlice(ip.SrcIP.To4())
	if !ok {
		return nil, fmt.Errorf("%w: source %s", ErrMalformed, ip.SrcIP)
	}
	to, ok := netip.AddrFromSlice(ip.DstIP.To4())
	if !ok {
		return nil, fmt.Errorf("%w: destination %s", ErrMalformed, ip.DstIP)
	}
	return &Frame{
		From:        from,
		To:          to,
		TTL:         ip.TTL,
		NextHeader:  dsr.NextHeader,
		Source:      netip.AddrFrom4(dsr.Source),
		Destination: netip.AddrFrom4(dsr.Destination),
		Options:     slices.Clone(dsr.Options),
		Payload:     slices.Clone(dsr.Payload),
	}, nil
}

// IsData reports whether the frame carries an upper-layer payload.
func (f *Frame) IsData() bool {
	return f.NextHeader != NoNextHeader
}

// SourceRoute returns the first source route option in the frame, if any.
func (f *Frame) SourceRoute() (SourceRoute, bool) {
	opts, err := DecodeOptions(f.Options)
	if err != nil {
		return SourceRoute{}, false
	}
	for _, opt := range opts {
		if sr, ok := opt.(SourceRoute); ok {
			return sr, true
		}
	}
	return SourceRoute{}, false
}

func (f *Frame) String() string {
	return fmt.Sprintf("(%s -> %s, ttl: %d, e2e: %s -> %s, nh: %d, opts: %d bytes, payload: %d bytes)",
		f.From, f.To, f.TTL, f.Source, f.Destination, f.NextHeader, len(f.Options), len(f.Payload))
}
