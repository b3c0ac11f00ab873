package link

import (
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type received struct {
	frame []byte
	from  netip.AddrPort
}

func listen(t *testing.T) (*UDPLink, chan received) {
	l, err := Listen(netip.MustParseAddrPort("127.0.0.1:0"), nil)
	require.NoError(t, err)
	ch := make(chan received, 16)
	l.Run(func(frame []byte, from netip.AddrPort) {
		ch <- received{frame, from}
	})
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l, ch
}

func expect(t *testing.T, ch chan received) received {
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return received{}
}

var (
	addrA = netip.MustParseAddr("10.2.0.1")
	addrB = netip.MustParseAddr("10.2.0.2")
	addrC = netip.MustParseAddr("10.2.0.3")
)

func TestTransmitReachesEveryNeighbour(t *testing.T) {
	a, _ := listen(t)
	b, chB := listen(t)
	c, chC := listen(t)
	a.Connect(addrB, b.LocalAddr())
	a.Connect(addrC, c.LocalAddr())
	b.Connect(addrA, a.LocalAddr())
	c.Connect(addrA, a.LocalAddr())

	frame := []byte("unicast to b")
	require.NoError(t, a.Transmit(frame, addrB))

	rb := expect(t, chB)
	rc := expect(t, chC)
	assert.Equal(t, frame, rb.frame)
	// c overhears the frame addressed to b
	assert.Equal(t, frame, rc.frame)
	assert.Equal(t, a.LocalAddr(), rb.from)
}

func TestTransmitBroadcast(t *testing.T) {
	a, _ := listen(t)
	b, chB := listen(t)
	a.Connect(addrB, b.LocalAddr())
	b.Connect(addrA, a.LocalAddr())

	require.NoError(t, a.Transmit([]byte{1, 2, 3}, protocol.Broadcast))
	assert.Equal(t, []byte{1, 2, 3}, expect(t, chB).frame)
}

func TestTransmitRejectsUnknownNextHop(t *testing.T) {
	a, _ := listen(t)
	err := a.Transmit([]byte{1}, addrC)
	assert.ErrorIs(t, err, state.ErrNotNeighbour)
}

func TestIgnoresStrangers(t *testing.T) {
	a, _ := listen(t)
	b, chB := listen(t)
	// b does not list a as a neighbour
	a.Connect(addrB, b.LocalAddr())
	require.NoError(t, a.Transmit([]byte{9}, addrB))
	select {
	case r := <-chB:
		t.Fatalf("unexpected frame %v", r.frame)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, []netip.Addr{addrB}, a.Neighbours())
}
