package core

import (
	"log/slog"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/skein/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() *state.State {
	return &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Clock: clock.NewMock(),
			Log:   slog.New(slog.DiscardHandler),
			Book:  state.NewAddressBook(nil),
		},
	}
}

func TestTracerFanout(t *testing.T) {
	s := testState()
	tr := &Tracer{}
	require.NoError(t, tr.Init(s))

	got := make(chan TraceEvent, 4)
	tr.Attach(func(ev TraceEvent) { got <- ev })
	ev := TraceEvent{Node: netip.MustParseAddr("10.0.0.1"), Event: RouteLearned, Desc: "route cached"}
	tr.Trace(ev)

	select {
	case recv := <-got:
		assert.Equal(t, RouteLearned, recv.Event)
		assert.Equal(t, ev.Node, recv.Node)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}

	require.NoError(t, tr.Cleanup(s))
	// events after cleanup are discarded
	tr.Trace(ev)
	require.NoError(t, tr.Cleanup(s))
}

func TestProbePayload(t *testing.T) {
	s := testState()
	s.ProbeSize = 64
	p := &Probe{}
	buf := p.encode(s, 7)
	assert.Len(t, buf, 64)

	p.Receive(s, netip.MustParseAddr("10.0.0.2"), buf)
	p.Receive(s, netip.MustParseAddr("10.0.0.2"), buf[:4])
	assert.Equal(t, uint64(1), p.Received)

	s.ProbeSize = 0
	assert.Len(t, p.encode(s, 8), probeHeaderLen)
}

func TestInspect(t *testing.T) {
	n := newTestNet(t, testCfg(), "S", "A", "D")
	n.connect("S-A")
	n.seed("S", "A")
	require.NoError(t, n.node("S").Send(n.addr("D"), testProto, []byte("x")))

	out := n.node("S").Inspect()
	for _, section := range []string{"Route Cache:", "Pending Discovery:", "Send Buffer:", "Maintenance:"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "S -> A")
	assert.Contains(t, out, "attempts=1")
	assert.Contains(t, out, "1 packets queued")
	assert.Equal(t, 1, strings.Count(out, "(none)"))
}
