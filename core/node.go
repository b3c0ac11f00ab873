package core

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/skein/link"
	"github.com/encodeous/skein/state"
)

// Node runs the protocol engine of the local node over the UDP link
type Node struct {
	*Dsr
	Link *link.UDPLink
}

func (n *Node) Init(s *state.State) error {
	self := s.Self()
	lnk, err := link.Listen(self.Endpoint, s.Log)
	if err != nil {
		return err
	}
	for _, peer := range s.GetPeers(self.Id) {
		cfg := s.GetNode(peer)
		lnk.Connect(cfg.Address, cfg.Endpoint)
	}
	n.Link = lnk
	n.Dsr = NewDsr(Config{
		Self:      self.Address,
		Dsr:       s.Dsr,
		Scheduler: s.Env,
		Link:      lnk,
		Deliver: func(src netip.Addr, nextHeader uint8, payload []byte) {
			n.deliver(s, src, nextHeader, payload)
		},
		Observer: Get[*Tracer](s),
		Log:      s.Log,
		Book:     s.Book,
		Seed:     uint64(time.Now().UnixNano()),
	})
	lnk.Run(func(frame []byte, from netip.AddrPort) {
		s.Dispatch(func(s *state.State) error {
			n.HandleFrame(frame)
			return nil
		})
	})
	n.Start()
	s.Log.Info("node started", "address", self.Address, "endpoint", lnk.LocalAddr(), "neighbours", len(lnk.Neighbours()))
	return nil
}

func (n *Node) deliver(s *state.State, src netip.Addr, nextHeader uint8, payload []byte) {
	switch nextHeader {
	case ProbeProtocol:
		Get[*Probe](s).Receive(s, src, payload)
	default:
		s.Log.Debug("received packet", "from", s.Book.Name(src), "proto", nextHeader, "len", len(payload))
	}
}

func (n *Node) Cleanup(s *state.State) error {
	if n.Dsr != nil {
		n.Stop()
	}
	if n.Link == nil {
		return nil
	}
	if err := n.Link.Close(); err != nil {
		return fmt.Errorf("close link: %w", err)
	}
	return nil
}
