package core

import (
	"sync"
	"sync/atomic"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/skein/perf"
	"github.com/encodeous/skein/state"
)

// Tracer fans protocol events out to its subscribers
type Tracer struct {
	broadcast.Broadcaster
	subs   []chan any
	wg     sync.WaitGroup
	closed atomic.Bool
}

func (t *Tracer) Init(s *state.State) error {
	t.Broadcaster = broadcast.NewBroadcaster(1024)
	t.Attach(countEvent)
	if s.Trace {
		t.Attach(func(ev TraceEvent) {
			s.Log.Info(ev.Event.String()+" "+ev.Desc, ev.Args...)
		})
	}
	return nil
}

// Attach runs fun on its own goroutine for every event submitted after the call
func (t *Tracer) Attach(fun func(ev TraceEvent)) {
	ch := make(chan any, 64)
	t.Register(ch)
	t.subs = append(t.subs, ch)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for v := range ch {
			fun(v.(TraceEvent))
		}
	}()
}

func (t *Tracer) Trace(ev TraceEvent) {
	if t.closed.Load() {
		return
	}
	t.Submit(ev)
}

func (t *Tracer) Cleanup(s *state.State) error {
	if t.closed.Swap(true) {
		return nil
	}
	for _, ch := range t.subs {
		t.Unregister(ch)
		close(ch)
	}
	t.wg.Wait()
	return t.Broadcaster.Close()
}

func countEvent(ev TraceEvent) {
	switch ev.Event {
	case RequestSent, RequestForwarded:
		perf.RequestsPerSecond.Add(1)
	case ReplySent, GratuitousReply:
		perf.RepliesPerSecond.Add(1)
	case RerrSent, RerrForwarded:
		perf.RouteErrorsPerSecond.Add(1)
	case AckReceived, PassiveAck:
		perf.AcksPerSecond.Add(1)
	case Retransmit:
		perf.RetransmitsPerSecond.Add(1)
	case PacketSalvaged:
		perf.SalvagesPerSecond.Add(1)
	case PacketDropped, DiscoveryExhausted:
		perf.DropsPerSecond.Add(1)
	case DataDelivered:
		perf.DeliveredPerSecond.Add(1)
	}
}
