package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreeFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Cooldown: 50 * time.Millisecond})

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.Record(false)
		assert.Equal(t, Closed, b.GetState())
	}

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	b.Record(false)
	require.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow())
}

func TestBreakerSuccessClosesFromHalfOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: 1 * time.Millisecond})
	b.Record(false)
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())

	b.Record(true)
	assert.Equal(t, Closed, b.GetState())
}

func TestBreakerFailureInHalfOpenReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: 1 * time.Millisecond})
	b.Record(false)
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, Open, b.GetState())
}

func TestBreakerReset(t *testing.T) {
	b := New(DefaultConfig)
	b.Record(false)
	b.Record(false)
	b.Reset()
	assert.Equal(t, Closed, b.GetState())
}
