package mock

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
)

// ErrLinkDown reports a unicast over a link that exists but is down. The frame still goes out,
// so it plays the part of a link layer that notices missing acknowledgments.
var ErrLinkDown = errors.New("next hop unreachable")

// Transmission is a frame put on the medium
type Transmission struct {
	At      time.Time
	From    netip.Addr
	NextHop netip.Addr
	Frame   []byte
}

type link struct {
	up      bool
	latency time.Duration
}

// Medium is an in-memory shared broadcast medium. Every transmission reaches all neighbours
// of the sender whose link is up, regardless of the intended next hop.
type Medium struct {
	sim   *Sim
	nodes map[netip.Addr]func(frame []byte)
	links map[state.Pair[netip.Addr, netip.Addr]]*link
	// Latency applies to links added without an explicit latency
	Latency time.Duration
	Sent    []Transmission
}

func NewMedium(sim *Sim) *Medium {
	return &Medium{
		sim:     sim,
		nodes:   make(map[netip.Addr]func(frame []byte)),
		links:   make(map[state.Pair[netip.Addr, netip.Addr]]*link),
		Latency: time.Millisecond,
	}
}

// Port is the attachment of one node to the medium
type Port struct {
	medium *Medium
	addr   netip.Addr
}

func (m *Medium) Attach(addr netip.Addr, recv func(frame []byte)) *Port {
	m.nodes[addr] = recv
	return &Port{m, addr}
}

func (m *Medium) Connect(a, b netip.Addr) {
	m.ConnectWithLatency(a, b, m.Latency)
}

func (m *Medium) ConnectWithLatency(a, b netip.Addr, latency time.Duration) {
	m.links[state.MakeLink(a, b)] = &link{up: true, latency: latency}
}

// SetLink brings an existing link up or down
func (m *Medium) SetLink(a, b netip.Addr, up bool) {
	if l, ok := m.links[state.MakeLink(a, b)]; ok {
		l.up = up
	}
}

func (m *Medium) IsUp(a, b netip.Addr) bool {
	l, ok := m.links[state.MakeLink(a, b)]
	return ok && l.up
}

// Neighbours returns the nodes reachable from a over links that are up, sorted
func (m *Medium) Neighbours(a netip.Addr) []netip.Addr {
	out := make([]netip.Addr, 0)
	for pair, l := range m.links {
		if !l.up {
			continue
		}
		switch a {
		case pair.V1:
			out = append(out, pair.V2)
		case pair.V2:
			out = append(out, pair.V1)
		}
	}
	slices.SortFunc(out, netip.Addr.Compare)
	return out
}

func (p *Port) Transmit(frame []byte, nextHop netip.Addr) error {
	m := p.medium
	if _, ok := m.links[state.MakeLink(p.addr, nextHop)]; !ok && nextHop != protocol.Broadcast {
		return fmt.Errorf("%w: %s", state.ErrNotNeighbour, nextHop)
	}
	m.Sent = append(m.Sent, Transmission{
		At:      m.sim.Now(),
		From:    p.addr,
		NextHop: nextHop,
		Frame:   bytes.Clone(frame),
	})
	for _, n := range m.Neighbours(p.addr) {
		recv, ok := m.nodes[n]
		if !ok {
			continue
		}
		data := bytes.Clone(frame)
		m.sim.AfterFunc(m.links[state.MakeLink(p.addr, n)].latency, func() {
			recv(data)
		})
	}
	if nextHop != protocol.Broadcast && !m.IsUp(p.addr, nextHop) {
		return ErrLinkDown
	}
	return nil
}

// SentBy returns the decoded frames transmitted by addr
func (m *Medium) SentBy(addr netip.Addr) []*protocol.Frame {
	out := make([]*protocol.Frame, 0)
	for _, t := range m.Sent {
		if t.From != addr {
			continue
		}
		if f, err := protocol.ParseFrame(t.Frame); err == nil {
			out = append(out, f)
		}
	}
	return out
}
