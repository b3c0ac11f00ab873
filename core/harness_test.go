package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/skein/mock"
	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness records the trace events of every node in a test network
type RouterHarness struct {
	actions []HarnessEvent
}

func (h *RouterHarness) Trace(ev TraceEvent) {
	x := make([]any, 0)
	x = append(x, ev.Node)
	x = append(x, ev.Desc)
	x = append(x, ev.Args...)
	h.actions = append(h.actions, MakeEvent(ev.Event.String(), x...))
}

func (h *RouterHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

var eventCmpOpts = []cmp.Option{
	cmpopts.EquateComparable(netip.Addr{}, state.PacketKey{}, protocol.RouteError{}),
}

func (e HarnessEvent) matches(msg string, args ...any) bool {
	if e.Message != msg || len(e.Args) < len(args) {
		return false
	}
	for i, arg := range args {
		if !cmp.Equal(e.Args[i], arg, eventCmpOpts...) {
			return false
		}
	}
	return true
}

func (e HarnessEvents) Count(msg string, args ...any) int {
	n := 0
	for _, event := range e {
		if event.matches(msg, args...) {
			n++
		}
	}
	return n
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	return e.Count(msg, args...) > 0
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

type testNode struct {
	*Dsr
	name      string
	delivered [][]byte
}

// testNet is a set of engines on a simulated broadcast medium
type testNet struct {
	t      *testing.T
	sim    *mock.Sim
	medium *mock.Medium
	h      *RouterHarness
	nodes  map[string]*testNode
	addrs  map[string]netip.Addr
}

func testCfg() state.DsrCfg {
	return state.DefaultDsrCfg()
}

func newTestNet(t *testing.T, cfg state.DsrCfg, names ...string) *testNet {
	sim := mock.NewSim()
	n := &testNet{
		t:      t,
		sim:    sim,
		medium: mock.NewMedium(sim),
		h:      &RouterHarness{},
		nodes:  make(map[string]*testNode),
		addrs:  make(map[string]netip.Addr),
	}
	book := make([]state.NodeCfg, 0, len(names))
	for i, name := range names {
		addr := netip.AddrFrom4([4]byte{10, 0, 0, byte(i + 1)})
		n.addrs[name] = addr
		book = append(book, state.NodeCfg{Id: state.NodeId(name), Address: addr})
	}
	ab := state.NewAddressBook(book)
	for i, name := range names {
		node := &testNode{name: name}
		port := n.medium.Attach(n.addrs[name], func(frame []byte) {
			node.HandleFrame(frame)
		})
		node.Dsr = NewDsr(Config{
			Self:      n.addrs[name],
			Dsr:       cfg,
			Scheduler: sim,
			Link:      port,
			Deliver: func(src netip.Addr, nextHeader uint8, payload []byte) {
				node.delivered = append(node.delivered, slices.Clone(payload))
			},
			Observer: n.h,
			Book:     ab,
			Seed:     uint64(i + 1),
		})
		node.Start()
		n.nodes[name] = node
	}
	return n
}

// connect links nodes given as "A-B" pairs
func (n *testNet) connect(links ...string) {
	for _, l := range links {
		a, b, ok := strings.Cut(l, "-")
		if !ok {
			n.t.Fatalf("bad link %q", l)
		}
		n.medium.Connect(n.addr(a), n.addr(b))
	}
}

func (n *testNet) setLink(a, b string, up bool) {
	n.medium.SetLink(n.addr(a), n.addr(b), up)
}

func (n *testNet) node(name string) *testNode {
	node, ok := n.nodes[name]
	if !ok {
		n.t.Fatalf("no node %s", name)
	}
	return node
}

func (n *testNet) addr(name string) netip.Addr {
	addr, ok := n.addrs[name]
	if !ok {
		n.t.Fatalf("no node %s", name)
	}
	return addr
}

func (n *testNet) path(names ...string) []netip.Addr {
	out := make([]netip.Addr, len(names))
	for i, name := range names {
		out[i] = n.addr(name)
	}
	return out
}

// seed caches a route at its first node
func (n *testNet) seed(names ...string) {
	_, err := n.node(names[0]).Cache().AddRoute(n.path(names...))
	if err != nil {
		n.t.Fatal(err)
	}
}

// dataFrames returns the data frames transmitted by name
func (n *testNet) dataFrames(name string) []*protocol.Frame {
	out := make([]*protocol.Frame, 0)
	for _, f := range n.medium.SentBy(n.addr(name)) {
		if f.IsData() {
			out = append(out, f)
		}
	}
	return out
}
