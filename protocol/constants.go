package protocol

import "net/netip"

// ProtocolNumber is the IP protocol number carried by every DSR frame.
const ProtocolNumber = 48

// NoNextHeader marks a DSR header that carries only options.
const NoNextHeader = 59

// option type numbers
const (
	OptPadN        uint8 = 0
	OptRouteReq    uint8 = 1
	OptRouteReply  uint8 = 2
	OptRouteError  uint8 = 3
	OptAck         uint8 = 32
	OptSourceRoute uint8 = 96
	OptAckReq      uint8 = 160
	OptPad1        uint8 = 224
)

// route error types
const (
	ErrNodeUnreachable       uint8 = 1
	ErrFlowStateNotSupported uint8 = 2
	ErrOptionNotSupported    uint8 = 3
)

const (
	FixedHeaderLen = 12
	ipv4Len        = 4
)

var Broadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

func OptionName(t uint8) string {
	switch t {
	case OptPadN:
		return "PADN"
	case OptRouteReq:
		return "RREQ"
	case OptRouteReply:
		return "RREP"
	case OptRouteError:
		return "RERR"
	case OptAck:
		return "ACK"
	case OptSourceRoute:
		return "SR"
	case OptAckReq:
		return "ACK_REQ"
	case OptPad1:
		return "PAD1"
	}
	return "UNKNOWN"
}
