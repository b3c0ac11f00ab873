package core

import (
	"time"

	"github.com/encodeous/skein/state"
)

type timerEntry struct {
	timer    state.Timer
	gen      uint64
	deadline time.Time
}

// TimerMap holds at most one live timer per key. Scheduling a key that is already armed
// cancels the previous timer first. A firing that races with Cancel is ignored.
type TimerMap[K comparable] struct {
	sched  state.Scheduler
	timers map[K]timerEntry
	gen    uint64
}

func NewTimerMap[K comparable](sched state.Scheduler) *TimerMap[K] {
	return &TimerMap[K]{
		sched:  sched,
		timers: make(map[K]timerEntry),
	}
}

func (m *TimerMap[K]) Schedule(key K, delay time.Duration, fun func()) {
	m.Cancel(key)
	m.gen++
	gen := m.gen
	t := m.sched.AfterFunc(delay, func() {
		e, ok := m.timers[key]
		if !ok || e.gen != gen {
			return
		}
		delete(m.timers, key)
		fun()
	})
	m.timers[key] = timerEntry{
		timer:    t,
		gen:      gen,
		deadline: m.sched.Now().Add(delay),
	}
}

// Cancel stops the timer for key and reports whether one was armed
func (m *TimerMap[K]) Cancel(key K) bool {
	e, ok := m.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(m.timers, key)
	return true
}

func (m *TimerMap[K]) Active(key K) bool {
	_, ok := m.timers[key]
	return ok
}

func (m *TimerMap[K]) Deadline(key K) (time.Time, bool) {
	e, ok := m.timers[key]
	return e.deadline, ok
}

func (m *TimerMap[K]) Len() int {
	return len(m.timers)
}

func (m *TimerMap[K]) Keys() []K {
	keys := make([]K, 0, len(m.timers))
	for k := range m.timers {
		keys = append(keys, k)
	}
	return keys
}

func (m *TimerMap[K]) CancelAll() {
	for k := range m.timers {
		m.Cancel(k)
	}
}
