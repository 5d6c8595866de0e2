package timer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultSampleInterval is how often the countdown is recomputed against the local clock
const DefaultSampleInterval = 69 * time.Millisecond

// Spec is the server-owned timer as carried in the shared state
type Spec struct {
	Target    int64  `json:"target"`
	Offset    int64  `json:"offset"`
	StartedAt *int64 `json:"started_at"`
	Message   string `json:"message,omitempty"`
}

// Running reports whether the server has the timer started
func (s Spec) Running() bool {
	return s.StartedAt != nil
}

// Elapsed returns the milliseconds the timer has been running as of nowMs
func (s Spec) Elapsed(nowMs int64) int64 {
	if s.StartedAt == nil {
		return 0
	}
	return nowMs - *s.StartedAt
}

// Remaining returns target - offset - elapsed. Negative once the timer has expired.
func (s Spec) Remaining(nowMs int64) int64 {
	return s.Target - s.Offset - s.Elapsed(nowMs)
}

// RemainingAt is Remaining for a wall clock instant
func (s Spec) RemainingAt(now time.Time) int64 {
	return s.Remaining(now.UnixMilli())
}

// SpecSource yields the current timer, ok is false while there is none to show
type SpecSource func() (Spec, bool)

// Sampler recomputes the countdown at a fixed interval so renderers get a smooth
// value without any network traffic.
type Sampler struct {
	clock    clockwork.Clock
	interval time.Duration
	source   SpecSource
	sink     func(remainingMs int64)
}

// NewSampler creates a sampler. A non-positive interval uses DefaultSampleInterval.
func NewSampler(clock clockwork.Clock, interval time.Duration, source SpecSource, sink func(remainingMs int64)) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{
		clock:    clock,
		interval: interval,
		source:   source,
		sink:     sink,
	}
}

// Run samples until the context is cancelled
func (s *Sampler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", s.interval).Msg("countdown sampler started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("countdown sampler stopped")
			return
		case now := <-ticker.Chan():
			spec, ok := s.source()
			if !ok {
				continue
			}
			s.sink(spec.RemainingAt(now))
		}
	}
}
