package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrTruncated     = errors.New("option truncated")
	ErrMalformed     = errors.New("option malformed")
	ErrUnknownOption = errors.New("unknown option type")
)

// Codec converts a single option type to and from its TLV encoding.
type Codec interface {
	Type() uint8
	// Decode reads one option from the start of buf and reports how many bytes it used.
	Decode(buf []byte) (Option, int, error)
	Encode(opt Option) ([]byte, error)
}

var codecs = map[uint8]Codec{
	OptPad1:        pad1Codec{},
	OptPadN:        padNCodec{},
	OptRouteReq:    rreqCodec{},
	OptRouteReply:  rrepCodec{},
	OptRouteError:  rerrCodec{},
	OptAckReq:      ackReqCodec{},
	OptAck:         ackCodec{},
	OptSourceRoute: srCodec{},
}

// CodecFor returns the codec registered for an option type.
func CodecFor(t uint8) (Codec, bool) {
	c, ok := codecs[t]
	return c, ok
}

// EncodeOptions concatenates the encoding of each option.
func EncodeOptions(opts ...Option) ([]byte, error) {
	out := make([]byte, 0, 64)
	for _, opt := range opts {
		c, ok := codecs[opt.OptionType()]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownOption, opt.OptionType())
		}
		b, err := c.Encode(opt)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodeOptions decodes every option in buf, failing on the first bad one.
func DecodeOptions(buf []byte) ([]Option, error) {
	opts := make([]Option, 0, 2)
	for off := 0; off < len(buf); {
		c, ok := codecs[buf[off]]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownOption, buf[off])
		}
		opt, n, err := c.Decode(buf[off:])
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
		off += n
	}
	return opts, nil
}

// body checks the TLV framing and returns the option data.
func body(buf []byte) ([]byte, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrTruncated
	}
	n := 2 + int(buf[1])
	if n > len(buf) {
		return nil, 0, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrTruncated, OptionName(buf[0]), n, len(buf))
	}
	return buf[2:n], n, nil
}

func header(t uint8, dataLen int) ([]byte, error) {
	if dataLen > 255 {
		return nil, fmt.Errorf("%w: %s data length %d", ErrMalformed, OptionName(t), dataLen)
	}
	b := make([]byte, 2, 2+dataLen)
	b[0] = t
	b[1] = uint8(dataLen)
	return b, nil
}

func readAddr(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte(b[:ipv4Len]))
}

func appendAddr(b []byte, addr netip.Addr) ([]byte, error) {
	if !addr.Is4() {
		return nil, fmt.Errorf("%w: %s is not an IPv4 address", ErrMalformed, addr)
	}
	a := addr.As4()
	return append(b, a[:]...), nil
}

func readAddrs(b []byte) ([]netip.Addr, error) {
	if len(b)%ipv4Len != 0 {
		return nil, fmt.Errorf("%w: address list of %d bytes", ErrMalformed, len(b))
	}
	addrs := make([]netip.Addr, 0, len(b)/ipv4Len)
	for i := 0; i < len(b); i += ipv4Len {
		addrs = append(addrs, readAddr(b[i:]))
	}
	return addrs, nil
}

func appendAddrs(b []byte, addrs ...netip.Addr) ([]byte, error) {
	var err error
	for _, a := range addrs {
		b, err = appendAddr(b, a)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func wrongType(c Codec, opt Option) error {
	return fmt.Errorf("%s codec cannot encode %T", OptionName(c.Type()), opt)
}

type pad1Codec struct{}

func (pad1Codec) Type() uint8 { return OptPad1 }

func (pad1Codec) Decode(buf []byte) (Option, int, error) {
	if len(buf) < 1 {
		return nil, 0, ErrTruncated
	}
	return Pad1{}, 1, nil
}

func (pad1Codec) Encode(Option) ([]byte, error) {
	return []byte{OptPad1}, nil
}

type padNCodec struct{}

func (padNCodec) Type() uint8 { return OptPadN }

func (padNCodec) Decode(buf []byte) (Option, int, error) {
	data, n, err := body(buf)
	if err != nil {
		return nil, 0, err
	}
	return PadN{Len: uint8(len(data))}, n, nil
}

func (c padNCodec) Encode(opt Option) ([]byte, error) {
	p, ok := opt.(PadN)
	if !ok {
		return nil, wrongType(c, opt)
	}
	b, err := header(OptPadN, int(p.Len))
	if err != nil {
		return nil, err
	}
	return append(b, make([]byte, p.Len)...), nil
}

type rreqCodec struct{}

func (rreqCodec) Type() uint8 { return OptRouteReq }

func (rreqCodec) Decode(buf []byte) (Option, int, error) {
	data, n, err := body(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 2+ipv4Len {
		return nil, 0, fmt.Errorf("%w: RREQ of %d bytes", ErrMalformed, len(data))
	}
	addrs, err := readAddrs(data[2+ipv4Len:])
	if err != nil {
		return nil, 0, err
	}
	if len(addrs) == 0 {
		return nil, 0, fmt.Errorf("%w: RREQ without originator", ErrMalformed)
	}
	return RouteRequest{
		Id:        binary.BigEndian.Uint16(data[0:2]),
		Target:    readAddr(data[2:]),
		Addresses: addrs,
	}, n, nil
}

func (c rreqCodec) Encode(opt Option) ([]byte, error) {
	r, ok := opt.(RouteRequest)
	if !ok {
		return nil, wrongType(c, opt)
	}
	b, err := header(OptRouteReq, 2+ipv4Len*(1+len(r.Addresses)))
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint16(b, r.Id)
	if b, err = appendAddr(b, r.Target); err != nil {
		return nil, err
	}
	return appendAddrs(b, r.Addresses...)
}

type rrepCodec struct{}

func (rrepCodec) Type() uint8 { return OptRouteReply }

func (rrepCodec) Decode(buf []byte) (Option, int, error) {
	data, n, err := body(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("%w: empty RREP", ErrMalformed)
	}
	addrs, err := readAddrs(data[1:])
	if err != nil {
		return nil, 0, err
	}
	if len(addrs) < 2 {
		return nil, 0, fmt.Errorf("%w: RREP route of %d nodes", ErrMalformed, len(addrs))
	}
	return RouteReply{Addresses: addrs}, n, nil
}

func (c rrepCodec) Encode(opt Option) ([]byte, error) {
	r, ok := opt.(RouteReply)
	if !ok {
		return nil, wrongType(c, opt)
	}
	b, err := header(OptRouteReply, 1+ipv4Len*len(r.Addresses))
	if err != nil {
		return nil, err
	}
	b = append(b, 0)
	return appendAddrs(b, r.Addresses...)
}

type rerrCodec struct{}

func (rerrCodec) Type() uint8 { return OptRouteError }

func (rerrCodec) Decode(buf []byte) (Option, int, error) {
	data, n, err := body(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(data) != 2+4*ipv4Len {
		return nil, 0, fmt.Errorf("%w: RERR of %d bytes", ErrMalformed, len(data))
	}
	return RouteError{
		Type:        data[0],
		Salvage:     data[1],
		ErrSrc:      readAddr(data[2:]),
		ErrDst:      readAddr(data[6:]),
		Unreachable: readAddr(data[10:]),
		OriginalDst: readAddr(data[14:]),
	}, n, nil
}

func (c rerrCodec) Encode(opt Option) ([]byte, error) {
	r, ok := opt.(RouteError)
	if !ok {
		return nil, wrongType(c, opt)
	}
	b, err := header(OptRouteError, 2+4*ipv4Len)
	if err != nil {
		return nil, err
	}
	b = append(b, r.Type, r.Salvage)
	return appendAddrs(b, r.ErrSrc, r.ErrDst, r.Unreachable, r.OriginalDst)
}

type ackReqCodec struct{}

func (ackReqCodec) Type() uint8 { return OptAckReq }

func (ackReqCodec) Decode(buf []byte) (Option, int, error) {
	data, n, err := body(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(data) != 2 {
		return nil, 0, fmt.Errorf("%w: ACK_REQ of %d bytes", ErrMalformed, len(data))
	}
	return AckRequest{Id: binary.BigEndian.Uint16(data)}, n, nil
}

func (c ackReqCodec) Encode(opt Option) ([]byte, error) {
	r, ok := opt.(AckRequest)
	if !ok {
		return nil, wrongType(c, opt)
	}
	b, err := header(OptAckReq, 2)
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.AppendUint16(b, r.Id), nil
}

type ackCodec struct{}

func (ackCodec) Type() uint8 { return OptAck }

func (ackCodec) Decode(buf []byte) (Option, int, error) {
	data, n, err := body(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(data) != 2+2*ipv4Len {
		return nil, 0, fmt.Errorf("%w: ACK of %d bytes", ErrMalformed, len(data))
	}
	return Ack{
		Id:        binary.BigEndian.Uint16(data),
		Acker:     readAddr(data[2:]),
		Requester: readAddr(data[6:]),
	}, n, nil
}

func (c ackCodec) Encode(opt Option) ([]byte, error) {
	a, ok := opt.(Ack)
	if !ok {
		return nil, wrongType(c, opt)
	}
	b, err := header(OptAck, 2+2*ipv4Len)
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint16(b, a.Id)
	return appendAddrs(b, a.Acker, a.Requester)
}

type srCodec struct{}

func (srCodec) Type() uint8 { return OptSourceRoute }

func (srCodec) Decode(buf []byte) (Option, int, error) {
	data, n, err := body(buf)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("%w: SR of %d bytes", ErrMalformed, len(data))
	}
	addrs, err := readAddrs(data[2:])
	if err != nil {
		return nil, 0, err
	}
	sr := SourceRoute{
		Salvage:      data[0],
		SegmentsLeft: data[1],
		Addresses:    addrs,
	}
	if err = sr.Validate(); err != nil {
		return nil, 0, err
	}
	return sr, n, nil
}

func (c srCodec) Encode(opt Option) ([]byte, error) {
	sr, ok := opt.(SourceRoute)
	if !ok {
		return nil, wrongType(c, opt)
	}
	if err := sr.Validate(); err != nil {
		return nil, err
	}
	b, err := header(OptSourceRoute, 2+ipv4Len*len(sr.Addresses))
	if err != nil {
		return nil, err
	}
	b = append(b, sr.Salvage, sr.SegmentsLeft)
	return appendAddrs(b, sr.Addresses...)
}
