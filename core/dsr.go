package core

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
)

// Link transmits a frame on the shared medium. nextHop is the intended receiver, or protocol.Broadcast.
// An error means the link layer could not reach nextHop.
type Link interface {
	Transmit(frame []byte, nextHop netip.Addr) error
}

// DeliverFunc hands a payload that reached its destination to the upper layer
type DeliverFunc func(src netip.Addr, nextHeader uint8, payload []byte)

type Config struct {
	Self      netip.Addr
	Dsr       state.DsrCfg
	Scheduler state.Scheduler
	Link      Link
	Deliver   DeliverFunc
	Observer  Observer
	Log       *slog.Logger
	Book      *state.AddressBook
	Seed      uint64
}

type RxStatus int

const (
	RxConsumed RxStatus = iota
	RxForwardedUp
	RxError
)

func (s RxStatus) String() string {
	switch s {
	case RxConsumed:
		return "consumed"
	case RxForwardedUp:
		return "forwarded up"
	default:
		return "error"
	}
}

// Dsr is the protocol engine of a single node. It is not safe for concurrent use,
// every method must be called from the goroutine that runs the Scheduler callbacks.
type Dsr struct {
	self    netip.Addr
	cfg     state.DsrCfg
	sched   state.Scheduler
	link    Link
	deliver DeliverFunc
	obs     Observer
	log     *slog.Logger
	book    *state.AddressBook
	rng     *rand.Rand

	handlers []OptionHandler

	cache    state.RouteCache
	rreq     *state.RreqTable
	graReply *state.GraReplyTable
	sendBuf  *state.SendBuffer
	maintBuf *state.MaintainBuffer

	// discovery
	addressReqTimer *TimerMap[netip.Addr]
	nonPropReqTimer *TimerMap[netip.Addr]
	interReqTimer   *TimerMap[state.RequestKey]
	replyTimer      *TimerMap[state.RequestKey]
	// maintenance
	addressForwardTimer *TimerMap[state.PacketKey]
	passiveAckTimer     *TimerMap[state.PacketKey]
	sendBuffTimer       *TimerMap[struct{}]

	ackId   uint16
	running bool
}

func NewDsr(c Config) *Dsr {
	cfg := c.Dsr.WithDefaults()
	d := &Dsr{
		self:    c.Self,
		cfg:     cfg,
		sched:   c.Scheduler,
		link:    c.Link,
		deliver: c.Deliver,
		obs:     c.Observer,
		log:     c.Log,
		book:    c.Book,
		rng:     rand.New(rand.NewPCG(c.Seed, c.Seed^0x5eed)),

		cache:    state.NewPathCache(c.Self, c.Scheduler, cfg),
		rreq:     state.NewRreqTable(c.Scheduler, cfg),
		graReply: state.NewGraReplyTable(c.Scheduler, cfg),
		sendBuf:  state.NewSendBuffer(c.Scheduler, cfg),
		maintBuf: state.NewMaintainBuffer(c.Scheduler, cfg),

		addressReqTimer:     NewTimerMap[netip.Addr](c.Scheduler),
		nonPropReqTimer:     NewTimerMap[netip.Addr](c.Scheduler),
		interReqTimer:       NewTimerMap[state.RequestKey](c.Scheduler),
		replyTimer:          NewTimerMap[state.RequestKey](c.Scheduler),
		addressForwardTimer: NewTimerMap[state.PacketKey](c.Scheduler),
		passiveAckTimer:     NewTimerMap[state.PacketKey](c.Scheduler),
		sendBuffTimer:       NewTimerMap[struct{}](c.Scheduler),
	}
	if d.obs == nil {
		d.obs = nopObserver{}
	}
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}
	if d.deliver == nil {
		d.deliver = func(netip.Addr, uint8, []byte) {}
	}
	if d.book == nil {
		d.book = state.NewAddressBook(nil)
	}
	d.registerHandlers()
	return d
}

// Start arms the periodic send buffer sweep
func (d *Dsr) Start() {
	d.running = true
	d.sendBuffTimer.Schedule(struct{}{}, d.cfg.SendBuffInterval, d.CheckSendBuffer)
}

// Stop cancels every timer. Buffered packets are discarded.
func (d *Dsr) Stop() {
	d.running = false
	for _, tm := range []interface{ CancelAll() }{
		d.addressReqTimer, d.nonPropReqTimer, d.interReqTimer, d.replyTimer,
		d.addressForwardTimer, d.passiveAckTimer, d.sendBuffTimer,
	} {
		tm.CancelAll()
	}
}

func (d *Dsr) Self() netip.Addr {
	return d.self
}

func (d *Dsr) Cache() state.RouteCache {
	return d.cache
}

func (d *Dsr) Log(event RouterEvent, desc string, args ...any) {
	msg := fmt.Sprintf("%s %s", event.String(), desc)
	if event.IsWarning() {
		d.log.Warn(msg, args...)
	} else {
		d.log.Debug(msg, args...)
	}
	d.obs.Trace(TraceEvent{
		Time:  d.sched.Now(),
		Node:  d.self,
		Event: event,
		Desc:  desc,
		Args:  args,
	})
}

func (d *Dsr) jitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(d.rng.Int64N(int64(bound)))
}

func (d *Dsr) nextAckId() uint16 {
	d.ackId++
	return d.ackId
}

// transmit serializes and sends a frame, reporting link layer failures
func (d *Dsr) transmit(f *protocol.Frame) error {
	f.From = d.self
	data, err := f.Marshal()
	if err != nil {
		d.Log(InconsistentState, "cannot encode frame", "frame", f, "error", err)
		return err
	}
	if err = d.link.Transmit(data, f.To); err != nil {
		d.Log(TransmitFailed, "link layer transmit failed", "to", f.To, "error", err)
		return err
	}
	return nil
}

// sendControl sends control options along route, which starts at the local node.
// Control frames are not tracked by maintenance.
func (d *Dsr) sendControl(route []netip.Addr, opts ...protocol.Option) error {
	if err := state.ValidatePath(d.self, route); err != nil {
		return err
	}
	opts = append(opts, protocol.NewSourceRoute(route, 0))
	buf, err := protocol.EncodeOptions(opts...)
	if err != nil {
		return err
	}
	return d.transmit(&protocol.Frame{
		To:          route[1],
		TTL:         state.DataTTL,
		NextHeader:  protocol.NoNextHeader,
		Source:      d.self,
		Destination: route[len(route)-1],
		Options:     buf,
	})
}

// HandleFrame is the link layer ingress. Frames addressed to this node or broadcast are processed
// by Receive, everything else is overheard through PromiscReceive.
func (d *Dsr) HandleFrame(data []byte) RxStatus {
	f, err := protocol.ParseFrame(data)
	if err != nil {
		d.Log(MalformedPacket, "cannot parse frame", "error", err)
		return RxError
	}
	if f.From == d.self {
		return RxConsumed
	}
	if f.To == d.self || f.To == protocol.Broadcast {
		return d.Receive(f)
	}
	d.PromiscReceive(f)
	return RxConsumed
}

// Receive processes a frame addressed to this node
func (d *Dsr) Receive(f *protocol.Frame) RxStatus {
	pkt := &InboundPacket{Frame: f}
	d.Process(pkt)
	if pkt.Dropped {
		d.Log(MalformedPacket, "packet dropped", "from", f.From, "reason", pkt.DropReason)
		return RxError
	}
	if f.Destination != d.self {
		if pkt.Route != nil {
			d.forward(pkt)
		}
		return RxConsumed
	}
	if !f.IsData() {
		return RxConsumed
	}
	if pkt.Route != nil && pkt.Route.Salvage == 0 {
		// reverse route towards the source
		path := pkt.Route.Path(f.Source, f.Destination)
		d.learn(reversed(path))
	}
	d.Log(DataDelivered, "delivered to upper layer", "src", f.Source, "len", len(f.Payload))
	d.deliver(f.Source, f.NextHeader, f.Payload)
	return RxForwardedUp
}

// learn caches route, which must start at the local node
func (d *Dsr) learn(route []netip.Addr) {
	added, err := d.cache.AddRoute(route)
	if err != nil {
		return
	}
	if added {
		d.Log(RouteLearned, "route cached", "dst", route[len(route)-1], "route", route)
	}
}

// PromiscReceive inspects a frame overheard on the medium for passive acknowledgments
// and route shortening opportunities
func (d *Dsr) PromiscReceive(f *protocol.Frame) {
	if !f.IsData() {
		return
	}
	sr, ok := f.SourceRoute()
	if !ok {
		return
	}
	if e, ok := d.FindSamePackets(f, sr); ok {
		d.Log(PassiveAck, "overheard next hop relay", "key", e.Key)
		d.confirm(e)
		return
	}
	if sr.Salvage == 0 {
		d.SendGratuitousReply(f, sr)
	}
}

// FindSamePackets matches an overheard relay against the packets awaiting confirmation
func (d *Dsr) FindSamePackets(f *protocol.Frame, sr protocol.SourceRoute) (*state.MaintainBuffEntry, bool) {
	return d.maintBuf.FindPassive(f.Source, f.Destination, f.From, sr.SegmentsLeft, f.Payload)
}

func reversed(path []netip.Addr) []netip.Addr {
	out := slices.Clone(path)
	slices.Reverse(out)
	return out
}
