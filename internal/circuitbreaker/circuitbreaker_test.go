package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

var errBroker = errors.New("broker down")

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreakerWithClock(3, time.Second, clockwork.NewFakeClock())

	for i := 0; i < 2; i++ {
		cb.RecordResult(errBroker)
		assert.Equal(t, StateClosed, cb.State())
		assert.True(t, cb.AllowRequest())
	}

	cb.RecordResult(errBroker)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.AllowRequest())
	assert.ErrorIs(t, cb.LastError(), errBroker)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreakerWithClock(2, time.Second, clockwork.NewFakeClock())

	cb.RecordResult(errBroker)
	cb.RecordResult(nil)
	cb.RecordResult(errBroker)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	tests := []struct {
		name      string
		result    error
		wantState State
		wantAllow bool
	}{
		{name: "successful trial closes", result: nil, wantState: StateClosed, wantAllow: true},
		{name: "failed trial reopens", result: errBroker, wantState: StateOpen, wantAllow: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			cb := NewCircuitBreakerWithClock(1, time.Second, clock)

			cb.RecordResult(errBroker)
			assert.False(t, cb.AllowRequest())

			clock.Advance(2 * time.Second)
			assert.True(t, cb.AllowRequest())
			assert.Equal(t, StateHalfOpen, cb.State())

			cb.RecordResult(tt.result)
			assert.Equal(t, tt.wantState, cb.State())
			assert.Equal(t, tt.wantAllow, cb.AllowRequest())
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown(9)", State(9).String())
}
