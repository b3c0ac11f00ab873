package core

import (
	"fmt"
	"net/netip"
	"time"
)

type RouterEvent int

// trace events

const (
	RequestSent RouterEvent = iota
	RequestForwarded
	RequestDropped
	ReplySent
	ReplyReceived
	RouteLearned
	RouteResolved
	DiscoveryExhausted
	PacketBuffered
	PacketDropped
	DataSent
	DataForwarded
	DataDelivered
	AckSent
	AckReceived
	PassiveAck
	Retransmit
	LinkBroken
	PacketSalvaged
	RerrSent
	RerrReceived
	RerrForwarded
	GratuitousReply
)

// warn events

const (
	MalformedPacket RouterEvent = iota + 1000
	InconsistentState
	TransmitFailed
)

var eventNames = map[RouterEvent]string{
	RequestSent:        "REQUEST_SENT",
	RequestForwarded:   "REQUEST_FORWARDED",
	RequestDropped:     "REQUEST_DROPPED",
	ReplySent:          "REPLY_SENT",
	ReplyReceived:      "REPLY_RECEIVED",
	RouteLearned:       "ROUTE_LEARNED",
	RouteResolved:      "ROUTE_RESOLVED",
	DiscoveryExhausted: "DISCOVERY_EXHAUSTED",
	PacketBuffered:     "PACKET_BUFFERED",
	PacketDropped:      "PACKET_DROPPED",
	DataSent:           "DATA_SENT",
	DataForwarded:      "DATA_FORWARDED",
	DataDelivered:      "DATA_DELIVERED",
	AckSent:            "ACK_SENT",
	AckReceived:        "ACK_RECEIVED",
	PassiveAck:         "PASSIVE_ACK",
	Retransmit:         "RETRANSMIT",
	LinkBroken:         "LINK_BROKEN",
	PacketSalvaged:     "PACKET_SALVAGED",
	RerrSent:           "RERR_SENT",
	RerrReceived:       "RERR_RECEIVED",
	RerrForwarded:      "RERR_FORWARDED",
	GratuitousReply:    "GRATUITOUS_REPLY",
	MalformedPacket:    "MALFORMED_PACKET",
	InconsistentState:  "INCONSISTENT_STATE",
	TransmitFailed:     "TRANSMIT_FAILED",
}

func (e RouterEvent) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EVENT_%d", int(e))
}

func (e RouterEvent) IsWarning() bool {
	return e >= 1000
}

// TraceEvent is a protocol event emitted by a node
type TraceEvent struct {
	Time  time.Time
	Node  netip.Addr
	Event RouterEvent
	Desc  string
	Args  []any // slog style key value pairs
}

func (t TraceEvent) String() string {
	return fmt.Sprintf("%s %s %s %s %v", t.Time.Format(time.StampMilli), t.Node, t.Event, t.Desc, t.Args)
}

// Observer receives every trace event of a node
type Observer interface {
	Trace(ev TraceEvent)
}

type nopObserver struct{}

func (nopObserver) Trace(TraceEvent) {}
