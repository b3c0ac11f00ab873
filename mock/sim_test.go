package mock

import (
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/skein/protocol"
	"github.com/encodeous/skein/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimOrdering(t *testing.T) {
	s := NewSim()
	order := make([]string, 0)
	s.AfterFunc(2*time.Second, func() { order = append(order, "c") })
	s.AfterFunc(time.Second, func() { order = append(order, "a") })
	s.AfterFunc(time.Second, func() { order = append(order, "b") })
	s.AfterFunc(-time.Second, func() { order = append(order, "now") })

	assert.Equal(t, 4, s.Run(100))
	assert.Equal(t, []string{"now", "a", "b", "c"}, order)
	assert.Equal(t, Epoch.Add(2*time.Second), s.Now())
}

func TestSimStop(t *testing.T) {
	s := NewSim()
	fired := false
	tm := s.AfterFunc(time.Second, func() { fired = true })
	s.AfterFunc(2*time.Second, func() {})
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	assert.Equal(t, 1, s.Pending())
	s.RunFor(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, Epoch.Add(time.Minute), s.Now())

	tm = s.AfterFunc(time.Second, func() {})
	s.RunFor(time.Second)
	assert.False(t, tm.Stop())
}

func TestSimNested(t *testing.T) {
	s := NewSim()
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 5 {
			s.AfterFunc(time.Second, tick)
		}
	}
	s.AfterFunc(0, tick)
	s.RunFor(10 * time.Second)
	assert.Equal(t, 5, count)
	assert.Equal(t, 0, s.Pending())
}

func TestMedium(t *testing.T) {
	s := NewSim()
	m := NewMedium(s)
	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	c := netip.MustParseAddr("10.0.0.3")
	got := make(map[netip.Addr]int)
	for _, n := range []netip.Addr{a, b, c} {
		m.Attach(n, func(frame []byte) { got[n]++ })
	}
	m.Connect(a, b)
	m.ConnectWithLatency(a, c, 5*time.Millisecond)

	pa := m.Attach(a, func(frame []byte) { got[a]++ })
	frame, err := (&protocol.Frame{
		From: a, To: b, TTL: 1, NextHeader: protocol.NoNextHeader,
		Source: a, Destination: b,
	}).Marshal()
	require.NoError(t, err)

	require.NoError(t, pa.Transmit(frame, b))
	s.RunFor(time.Millisecond)
	assert.Equal(t, 1, got[b])
	assert.Equal(t, 0, got[c])
	s.RunFor(5 * time.Millisecond)
	assert.Equal(t, 1, got[c], "neighbours overhear unicast frames")

	m.SetLink(a, b, false)
	assert.ErrorIs(t, pa.Transmit(frame, b), ErrLinkDown)
	assert.NoError(t, pa.Transmit(frame, protocol.Broadcast))
	s.RunFor(time.Second)
	assert.Equal(t, 1, got[b])
	assert.Equal(t, 3, got[c])
	assert.Equal(t, []netip.Addr{c}, m.Neighbours(a))
	assert.Len(t, m.SentBy(a), 3)

	// no link at all is refused before anything is sent
	d := netip.MustParseAddr("10.0.0.4")
	assert.ErrorIs(t, pa.Transmit(frame, d), state.ErrNotNeighbour)
	assert.Len(t, m.SentBy(a), 3)
}

func TestMockCfg(t *testing.T) {
	cfg, weights := MockCfg()
	s := NewSim()
	m, err := NewMediumFromConfig(s, &cfg, weights)
	require.NoError(t, err)
	bob := cfg.GetNode("bob").Address
	assert.Len(t, m.Neighbours(bob), 3)
	lat, ok := GetMockLatency("eve", "bob", weights)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, lat)
}
