package state

import (
	"fmt"
	"time"
)

// TimeSource is the clock read by the protocol tables.
type TimeSource interface {
	Now() time.Time
}

// Timer is a scheduled single-shot callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the timer already fired or was stopped.
	Stop() bool
}

// Scheduler hosts the protocol timers. Callbacks must run on the goroutine that owns the protocol state.
type Scheduler interface {
	TimeSource
	AfterFunc(delay time.Duration, fun func()) Timer
}

// Dispatch Dispatches the function to run on the main thread without waiting for it to complete
func (e *Env) Dispatch(fun func(*State) error) {
	defer func() {
		if r := recover(); r != nil {
			e.Cancel(fmt.Errorf("panic: %v", r))
		}
	}()
	select {
	case e.DispatchChannel <- fun:
	case <-e.Context.Done():
	}
}

// DispatchWait Dispatches the function to run on the main thread and wait for it to complete
func (e *Env) DispatchWait(fun func(*State) (any, error)) (any, error) {
	ret := make(chan Pair[any, error], 1)
	e.Dispatch(func(s *State) error {
		res, err := fun(s)
		ret <- Pair[any, error]{res, err}
		return err
	})
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		return nil, e.Context.Err()
	}
}

func (e *Env) Now() time.Time {
	return e.Clock.Now()
}

// AfterFunc schedules fun on the main thread. A stopped timer may still have its dispatch queued,
// so owners must tolerate a late callback (see core.TimerMap).
func (e *Env) AfterFunc(delay time.Duration, fun func()) Timer {
	return e.Clock.AfterFunc(delay, func() {
		e.Dispatch(func(s *State) error {
			fun()
			return nil
		})
	})
}

func (e *Env) ScheduleTask(fun func(*State) error, delay time.Duration) {
	e.Clock.AfterFunc(delay, func() {
		e.Dispatch(fun)
	})
}

func (e *Env) repeatedTask(fun func(*State) error, delay time.Duration) {
	ticker := e.Clock.Ticker(delay)
	defer ticker.Stop()
	for e.Context.Err() == nil {
		e.Dispatch(fun)
		select {
		case <-ticker.C:
		case <-e.Context.Done():
			return
		}
	}
}

func (e *Env) RepeatTask(fun func(*State) error, delay time.Duration) {
	go e.repeatedTask(fun, delay)
}
