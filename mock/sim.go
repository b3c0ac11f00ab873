package mock

import (
	"container/heap"
	"time"

	"github.com/encodeous/skein/state"
)

// Epoch is the virtual time every Sim starts at
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type event struct {
	at       time.Time
	seq      uint64
	fn       func()
	index    int
	finished bool
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *eventQueue) Pop() any {
	old := *q
	e := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	e.index = -1
	return e
}

// Sim is a single-threaded discrete event scheduler with a virtual clock.
// Events due at the same instant run in the order they were scheduled.
type Sim struct {
	now   time.Time
	seq   uint64
	queue eventQueue
}

var _ state.Scheduler = (*Sim)(nil)

func NewSim() *Sim {
	return &Sim{now: Epoch}
}

func (s *Sim) Now() time.Time {
	return s.now
}

type simTimer struct {
	sim *Sim
	ev  *event
}

func (t simTimer) Stop() bool {
	if t.ev.finished {
		return false
	}
	t.ev.finished = true
	heap.Remove(&t.sim.queue, t.ev.index)
	return true
}

func (s *Sim) AfterFunc(delay time.Duration, fun func()) state.Timer {
	ev := &event{
		at:  s.now.Add(max(delay, 0)),
		seq: s.seq,
		fn:  fun,
	}
	s.seq++
	heap.Push(&s.queue, ev)
	return simTimer{s, ev}
}

// Step runs the next event, returning false when none is pending
func (s *Sim) Step() bool {
	if len(s.queue) == 0 {
		return false
	}
	ev := heap.Pop(&s.queue).(*event)
	ev.finished = true
	s.now = ev.at
	ev.fn()
	return true
}

// Run executes up to limit events and returns how many ran
func (s *Sim) Run(limit int) int {
	n := 0
	for n < limit && s.Step() {
		n++
	}
	return n
}

// RunFor executes every event due within d and advances the clock by d
func (s *Sim) RunFor(d time.Duration) {
	end := s.now.Add(d)
	for len(s.queue) > 0 && !s.queue[0].at.After(end) {
		s.Step()
	}
	s.now = end
}

func (s *Sim) Pending() int {
	return len(s.queue)
}
