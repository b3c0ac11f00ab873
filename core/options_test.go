package core

import (
	"net/netip"
	"testing"

	"github.com/encodeous/skein/mock"
	"github.com/encodeous/skein/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoneDsr(t *testing.T) (*Dsr, *RouterHarness) {
	t.Helper()
	sim := mock.NewSim()
	medium := mock.NewMedium(sim)
	self := netip.MustParseAddr("10.0.0.1")
	medium.Connect(self, netip.MustParseAddr("10.0.0.2"))
	h := &RouterHarness{}
	d := NewDsr(Config{
		Self:      self,
		Dsr:       testCfg(),
		Scheduler: sim,
		Link:      medium.Attach(self, func([]byte) {}),
		Observer:  h,
		Seed:      1,
	})
	return d, h
}

func inbound(t *testing.T, opts []byte) *InboundPacket {
	t.Helper()
	return &InboundPacket{Frame: &protocol.Frame{
		From:        netip.MustParseAddr("10.0.0.2"),
		To:          netip.MustParseAddr("10.0.0.1"),
		TTL:         8,
		NextHeader:  protocol.NoNextHeader,
		Source:      netip.MustParseAddr("10.0.0.2"),
		Destination: netip.MustParseAddr("10.0.0.1"),
		Options:     opts,
	}}
}

func TestProcessPadding(t *testing.T) {
	d, _ := newLoneDsr(t)
	opts, err := protocol.EncodeOptions(protocol.Pad1{}, protocol.PadN{Len: 3})
	require.NoError(t, err)
	pkt := inbound(t, opts)

	assert.Equal(t, 6, d.Process(pkt))
	assert.False(t, pkt.Dropped)
	assert.Equal(t, []protocol.Option{protocol.Pad1{}, protocol.PadN{Len: 3}}, pkt.Decoded)
}

func TestProcessUnknownOption(t *testing.T) {
	d, _ := newLoneDsr(t)
	pad, err := protocol.EncodeOptions(protocol.Pad1{})
	require.NoError(t, err)
	pkt := inbound(t, append(pad, 0x77, 0))

	assert.Equal(t, 1, d.Process(pkt))
	assert.True(t, pkt.Dropped)
	assert.Contains(t, pkt.DropReason, "unknown option 119")
}

func TestProcessMalformedOption(t *testing.T) {
	d, _ := newLoneDsr(t)
	// length runs past the end of the option area
	pkt := inbound(t, []byte{protocol.OptRouteReq, 10, 0, 1})

	assert.Equal(t, 0, d.Process(pkt))
	assert.True(t, pkt.Dropped)
	assert.Empty(t, pkt.Decoded)
}

func TestProcessStopsAtRejectedOption(t *testing.T) {
	d, _ := newLoneDsr(t)
	sr := protocol.NewSourceRoute([]netip.Addr{
		netip.MustParseAddr("10.0.0.2"),
		netip.MustParseAddr("10.0.0.9"),
		netip.MustParseAddr("10.0.0.1"),
	}, 0)
	opts, err := protocol.EncodeOptions(sr, protocol.Pad1{})
	require.NoError(t, err)
	pkt := inbound(t, opts)

	d.Process(pkt)
	assert.True(t, pkt.Dropped)
	assert.Contains(t, pkt.DropReason, "10.0.0.9")
	assert.Nil(t, pkt.Route)
	// the pad after the rejected route is never decoded
	assert.Len(t, pkt.Decoded, 1)
}

type countingHandler struct {
	protocol.Codec
	applied int
}

func (c *countingHandler) Apply(*Dsr, *InboundPacket, protocol.Option) error {
	c.applied++
	return nil
}

func TestFirstRegisteredHandlerWins(t *testing.T) {
	d, _ := newLoneDsr(t)
	late := &countingHandler{Codec: codecOf(protocol.OptPad1)}
	d.Insert(late)
	assert.IsType(t, padHandler{}, d.GetOption(protocol.OptPad1))

	d.Process(inbound(t, []byte{protocol.OptPad1}))
	assert.Zero(t, late.applied)

	custom := &countingHandler{Codec: codecOf(protocol.OptPadN)}
	d.handlers = nil
	d.Insert(custom)
	d.Process(inbound(t, []byte{protocol.OptPadN, 0}))
	assert.Equal(t, 1, custom.applied)
	assert.Nil(t, d.GetOption(protocol.OptRouteReq))
}

func TestAckRequestIsAnswered(t *testing.T) {
	d, h := newLoneDsr(t)
	opts, err := protocol.EncodeOptions(protocol.AckRequest{Id: 42})
	require.NoError(t, err)
	pkt := inbound(t, opts)

	d.Process(pkt)
	assert.False(t, pkt.Dropped)
	h.GetActions().AssertContains(t, "ACK_SENT", d.Self(), "acknowledged packet", "id", uint16(42), "to", pkt.From)
}

func TestMalformedFrameIsReported(t *testing.T) {
	d, h := newLoneDsr(t)
	assert.Equal(t, RxError, d.HandleFrame([]byte{0x45, 0, 0}))
	h.GetActions().AssertContains(t, "MALFORMED_PACKET", d.Self(), "cannot parse frame")
}
