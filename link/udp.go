package link

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/encodeous/skein/perf"
	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
	"golang.org/x/net/ipv4"
)

const batchSize = 32

// Handler receives every frame heard on the medium. The slice is owned by the handler.
type Handler func(frame []byte, from netip.AddrPort)

// UDPLink emulates a shared broadcast medium over UDP. Every transmission reaches all neighbours,
// so frames for other receivers are overheard just like on a radio channel.
type UDPLink struct {
	log   *slog.Logger
	conn  *net.UDPConn
	pconn *ipv4.PacketConn

	mu        sync.RWMutex
	peers     map[netip.Addr]netip.AddrPort
	endpoints map[netip.AddrPort]struct{}
	wmsgs     []ipv4.Message

	closed atomic.Bool
	wg     sync.WaitGroup
}

func Listen(bind netip.AddrPort, log *slog.Logger) (*UDPLink, error) {
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(bind))
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", bind, err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &UDPLink{
		log:       log,
		conn:      conn,
		pconn:     ipv4.NewPacketConn(conn),
		peers:     make(map[netip.Addr]netip.AddrPort),
		endpoints: make(map[netip.AddrPort]struct{}),
	}, nil
}

func (l *UDPLink) LocalAddr() netip.AddrPort {
	ap := l.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Connect makes the node at addr, reachable on ep, a neighbour on the medium
func (l *UDPLink) Connect(addr netip.Addr, ep netip.AddrPort) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[addr] = ep
	l.endpoints[ep] = struct{}{}
}

func (l *UDPLink) Neighbours() []netip.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]netip.Addr, 0, len(l.peers))
	for a := range l.peers {
		out = append(out, a)
	}
	slices.SortFunc(out, netip.Addr.Compare)
	return out
}

// Transmit sends frame to every neighbour. nextHop must be a neighbour or protocol.Broadcast.
func (l *UDPLink) Transmit(frame []byte, nextHop netip.Addr) error {
	if len(frame) > state.SafeMTU {
		return fmt.Errorf("frame of %d bytes exceeds mtu %d", len(frame), state.SafeMTU)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.peers[nextHop]; !ok && nextHop != protocol.Broadcast {
		return fmt.Errorf("%w: %s", state.ErrNotNeighbour, nextHop)
	}
	l.wmsgs = l.wmsgs[:0]
	for _, ep := range l.peers {
		l.wmsgs = append(l.wmsgs, ipv4.Message{
			Buffers: [][]byte{frame},
			Addr:    net.UDPAddrFromAddrPort(ep),
		})
	}
	msgs := l.wmsgs
	for len(msgs) > 0 {
		n, err := l.pconn.WriteBatch(msgs, 0)
		if err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		perf.SendBatchSize.Add(float64(n))
		msgs = msgs[n:]
	}
	perf.SentFramesPerSecond.Add(1)
	perf.SentBytesPerSecond.Add(float64(len(frame) * len(l.wmsgs)))
	return nil
}

// Run reads frames from neighbours until the link is closed
func (l *UDPLink) Run(handler Handler) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.readLoop(handler)
	}()
}

func (l *UDPLink) readLoop(handler Handler) {
	msgs := make([]ipv4.Message, batchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, state.SafeMTU)}
	}
	for {
		n, err := l.pconn.ReadBatch(msgs, 0)
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("udp read failed", "error", err)
			continue
		}
		perf.RecvBatchSize.Add(float64(n))
		for _, msg := range msgs[:n] {
			from := msg.Addr.(*net.UDPAddr).AddrPort()
			from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
			if !l.isNeighbour(from) {
				l.log.Debug("ignoring frame from outside the medium", "from", from)
				continue
			}
			perf.RecvFramesPerSecond.Add(1)
			perf.RecvBytesPerSecond.Add(float64(msg.N))
			handler(slices.Clone(msg.Buffers[0][:msg.N]), from)
		}
	}
}

func (l *UDPLink) isNeighbour(ep netip.AddrPort) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.endpoints[ep]
	return ok
}

func (l *UDPLink) Close() error {
	l.closed.Store(true)
	err := l.conn.Close()
	l.wg.Wait()
	return err
}
