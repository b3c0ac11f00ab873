package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/skein/state"
)

// ProbeProtocol is the upper-layer protocol number of probe payloads (experimental range)
const ProbeProtocol = 253

const probeHeaderLen = 16

// Probe periodically sends timestamped payloads to the configured nodes
type Probe struct {
	seq      uint64
	Sent     uint64
	Received uint64
}

func (p *Probe) Init(s *state.State) error {
	if len(s.Probes) == 0 {
		return nil
	}
	interval := s.ProbeInterval
	if interval == 0 {
		interval = state.DefaultProbeInterval
	}
	s.RepeatTask(p.sendProbes, interval)
	return nil
}

func (p *Probe) sendProbes(s *state.State) error {
	n := Get[*Node](s)
	for _, id := range s.Probes {
		addr, ok := s.Book.AddrOf(id)
		if !ok {
			return fmt.Errorf("probe target %s is not a node", id)
		}
		p.seq++
		if err := n.Send(addr, ProbeProtocol, p.encode(s, p.seq)); err != nil {
			s.Log.Warn("cannot send probe", "to", id, "error", err)
			continue
		}
		p.Sent++
	}
	return nil
}

func (p *Probe) encode(s *state.State, seq uint64) []byte {
	size := max(s.ProbeSize, probeHeaderLen)
	buf := make([]byte, size)
	binary.BigEndian.PutUint64(buf, seq)
	binary.BigEndian.PutUint64(buf[8:], uint64(s.Now().UnixNano()))
	return buf
}

func (p *Probe) Receive(s *state.State, src netip.Addr, payload []byte) {
	if len(payload) < probeHeaderLen {
		s.Log.Debug("short probe", "from", s.Book.Name(src), "len", len(payload))
		return
	}
	p.Received++
	seq := binary.BigEndian.Uint64(payload)
	sent := time.Unix(0, int64(binary.BigEndian.Uint64(payload[8:])))
	s.Log.Info("probe received", "from", s.Book.Name(src), "seq", seq, "latency", s.Now().Sub(sent))
}

func (p *Probe) Cleanup(s *state.State) error {
	return nil
}
