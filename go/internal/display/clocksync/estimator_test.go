package clocksync

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorRequest(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_123))
	e := NewEstimator(clock)

	assert.Equal(t, map[string]any{"client_time": int64(1_700_000_000_123)}, e.Request())
}

func TestEstimatorObserve(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(10_000))
	e := NewEstimator(clock)

	_, ok := e.Latest()
	assert.False(t, ok)

	// request went out at 9_900, server saw it at 10_150 and answered with its own clock
	est := e.Observe(Reply{ServerTime: 10_200, Offset: 250})

	assert.Equal(t, int64(200), est.ClientOffset)
	assert.Equal(t, int64(250), est.ServerOffset)
	assert.InDelta(t, 225.0, est.Average, 1e-9)

	latest, ok := e.Latest()
	require.True(t, ok)
	assert.Equal(t, est, latest)
}

func TestEstimatorHalfMillisecond(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(0))
	e := NewEstimator(clock)

	est := e.Observe(Reply{ServerTime: -3, Offset: 0})
	assert.InDelta(t, -1.5, est.Average, 1e-9)

	e.Reset()
	_, ok := e.Latest()
	assert.False(t, ok)
}
