package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(clk clock.Clock) (*Env, chan func(*State) error, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	dispatchChan := make(chan func(*State) error, 10)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Clock:           clk,
		Cancel: func(err error) {
			cancel()
		},
	}
	return env, dispatchChan, cancel
}

func TestDispatch(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(clock.New())
	defer cancel()

	called := false
	env.Dispatch(func(s *State) error {
		called = true
		return nil
	})

	select {
	case f := <-dispatchChan:
		require.NoError(t, f(&State{Env: env}))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timed out waiting for dispatched function")
	}
	assert.True(t, called)
}

func TestDispatchAfterCancel(t *testing.T) {
	env, _, cancel := newTestEnv(clock.New())
	env.DispatchChannel = make(chan func(*State) error)
	cancel()

	done := make(chan struct{})
	go func() {
		env.Dispatch(func(s *State) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a stopped environment")
	}
}

func TestDispatchWait(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(clock.New())
	defer cancel()

	go func() {
		f := <-dispatchChan
		_ = f(&State{Env: env})
	}()
	res, err := env.DispatchWait(func(s *State) (any, error) {
		return 42, errors.New("boom")
	})
	assert.Equal(t, 42, res)
	assert.EqualError(t, err, "boom")
}

func TestScheduleTask(t *testing.T) {
	mock := clock.NewMock()
	env, dispatchChan, cancel := newTestEnv(mock)
	defer cancel()

	taskCalled := false
	env.ScheduleTask(func(s *State) error {
		taskCalled = true
		return nil
	}, 50*time.Millisecond)

	mock.Add(49 * time.Millisecond)
	assert.Empty(t, dispatchChan)
	mock.Add(time.Millisecond)

	select {
	case f := <-dispatchChan:
		require.NoError(t, f(&State{Env: env}))
	case <-time.After(time.Second):
		t.Fatal("No task was scheduled")
	}
	assert.True(t, taskCalled)
}

func TestAfterFuncStop(t *testing.T) {
	mock := clock.NewMock()
	env, dispatchChan, cancel := newTestEnv(mock)
	defer cancel()

	fired := 0
	tm := env.AfterFunc(time.Second, func() { fired++ })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	mock.Add(2 * time.Second)
	assert.Empty(t, dispatchChan)

	env.AfterFunc(time.Second, func() { fired++ })
	mock.Add(time.Second)
	f := <-dispatchChan
	require.NoError(t, f(&State{Env: env}))
	assert.Equal(t, 1, fired)
	assert.Equal(t, mock.Now(), env.Now())
}

func TestRepeatTask(t *testing.T) {
	env, dispatchChan, cancel := newTestEnv(clock.New())
	defer cancel()
	state := &State{Env: env}

	count := 0
	env.RepeatTask(func(s *State) error {
		count++
		if count >= 3 {
			cancel()
		}
		return nil
	}, 20*time.Millisecond)

loop:
	for {
		select {
		case f := <-dispatchChan:
			require.NoError(t, f(state))
		case <-env.Context.Done():
			break loop
		case <-time.After(500 * time.Millisecond):
			t.Fatal("Timed out waiting for RepeatTask to execute")
		}
	}
	assert.Equal(t, 3, count)
}
