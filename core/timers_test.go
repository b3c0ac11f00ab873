package core

import (
	"testing"
	"time"

	"github.com/encodeous/skein/mock"
	"github.com/stretchr/testify/assert"
)

func TestTimerMapReschedule(t *testing.T) {
	sim := mock.NewSim()
	tm := NewTimerMap[string](sim)
	fired := make([]string, 0)
	tm.Schedule("a", time.Second, func() { fired = append(fired, "first") })
	tm.Schedule("a", 2*time.Second, func() { fired = append(fired, "second") })
	assert.Equal(t, 1, tm.Len())

	deadline, ok := tm.Deadline("a")
	assert.True(t, ok)
	assert.Equal(t, mock.Epoch.Add(2*time.Second), deadline)

	sim.RunFor(3 * time.Second)
	assert.Equal(t, []string{"second"}, fired)
	assert.False(t, tm.Active("a"))
}

func TestTimerMapCancel(t *testing.T) {
	sim := mock.NewSim()
	tm := NewTimerMap[int](sim)
	fired := false
	tm.Schedule(1, time.Second, func() { fired = true })
	tm.Schedule(2, time.Second, func() {})

	assert.True(t, tm.Cancel(1))
	assert.False(t, tm.Cancel(1))
	assert.ElementsMatch(t, []int{2}, tm.Keys())

	tm.CancelAll()
	sim.RunFor(time.Minute)
	assert.False(t, fired)
	assert.Zero(t, tm.Len())
	assert.Zero(t, sim.Pending())
}

func TestTimerMapCallbackMayReschedule(t *testing.T) {
	sim := mock.NewSim()
	tm := NewTimerMap[string](sim)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			tm.Schedule("tick", time.Second, tick)
		}
	}
	tm.Schedule("tick", time.Second, tick)
	sim.RunFor(time.Minute)
	assert.Equal(t, 3, count)
	assert.False(t, tm.Active("tick"))
}

func TestRouterEventString(t *testing.T) {
	assert.Equal(t, "ROUTE_RESOLVED", RouteResolved.String())
	assert.Equal(t, "TRANSMIT_FAILED", TransmitFailed.String())
	assert.Equal(t, "EVENT_500", RouterEvent(500).String())
	assert.True(t, MalformedPacket.IsWarning())
	assert.False(t, GratuitousReply.IsWarning())
}
