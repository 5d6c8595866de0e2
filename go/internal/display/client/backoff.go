package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// Backoff hands out reconnect delays: seed, seed*m, seed*m^2, ... capped at max.
// It only grows until Reset. The caller does the waiting.
type Backoff struct {
	exp *backoff.ExponentialBackOff
}

// NewBackoff creates a backoff. Multipliers below 1 are treated as 1.
func NewBackoff(clock clockwork.Clock, seed, max time.Duration, multiplier float64) *Backoff {
	if multiplier < 1 {
		multiplier = 1
	}
	if max < seed {
		max = seed
	}
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(seed),
		backoff.WithMaxInterval(max),
		backoff.WithMultiplier(multiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0), // retry forever
		backoff.WithClockProvider(clock),
	)
	return &Backoff{exp: exp}
}

// Next returns the delay before the next attempt and escalates the one after it
func (b *Backoff) Next() time.Duration {
	return b.exp.NextBackOff()
}

// Reset goes back to the seed after a successful connection
func (b *Backoff) Reset() {
	b.exp.Reset()
}
