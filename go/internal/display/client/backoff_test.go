package client

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestBackoffEscalatesToCap(t *testing.T) {
	b := NewBackoff(clockwork.NewFakeClock(), time.Second, time.Minute, 2)

	var got []time.Duration
	for range 9 {
		got = append(got, b.Next())
	}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	assert.Equal(t, want, got)
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(clockwork.NewFakeClock(), time.Second, time.Minute, 2)
	b.Next()
	b.Next()
	assert.Equal(t, 4*time.Second, b.Next())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoffClampsArguments(t *testing.T) {
	b := NewBackoff(clockwork.NewFakeClock(), 500*time.Millisecond, 100*time.Millisecond, 0.5)

	assert.Equal(t, 500*time.Millisecond, b.Next())
	assert.Equal(t, 500*time.Millisecond, b.Next())
}
