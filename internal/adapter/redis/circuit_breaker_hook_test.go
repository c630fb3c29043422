package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(hook *CircuitBreakerHook, result error) error {
	ctx := context.Background()
	process := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		return result
	})
	return process(ctx, goredis.NewStringCmd(ctx, "publish", "dashboard:events", "{}"))
}

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(BreakerSettings{})

	for range 10 {
		assert.NoError(t, runCommand(hook, nil))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_NilIsNotAFailure(t *testing.T) {
	hook := NewCircuitBreakerHook(BreakerSettings{})

	for range 10 {
		assert.ErrorIs(t, runCommand(hook, goredis.Nil), goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	var transitions []circuitbreaker.State
	hook := NewCircuitBreakerHook(BreakerSettings{
		OnStateChange: func(_, to circuitbreaker.State) { transitions = append(transitions, to) },
	})

	boom := errors.New("connection refused")
	for range 5 {
		assert.ErrorIs(t, runCommand(hook, boom), boom)
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())
	assert.Equal(t, []circuitbreaker.State{circuitbreaker.OpenState}, transitions)

	called := false
	ctx := context.Background()
	process := hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		called = true
		return nil
	})
	err := process(ctx, goredis.NewStringCmd(ctx, "ping"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called, "open breaker must not reach redis")
}

func TestCircuitBreakerHook_PipelineFailuresCount(t *testing.T) {
	hook := NewCircuitBreakerHook(BreakerSettings{})
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(ctx context.Context, cmds []goredis.Cmder) error {
		return errors.New("i/o timeout")
	})
	for range 5 {
		assert.Error(t, pipeline(ctx, nil))
	}
	assert.Equal(t, circuitbreaker.OpenState, hook.State())
}

func TestStateValue(t *testing.T) {
	assert.Equal(t, 0.0, StateValue(circuitbreaker.ClosedState))
	assert.Equal(t, 1.0, StateValue(circuitbreaker.HalfOpenState))
	assert.Equal(t, 2.0, StateValue(circuitbreaker.OpenState))
}
