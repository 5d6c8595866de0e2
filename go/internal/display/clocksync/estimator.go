// Package clocksync estimates the offset between the local clock and the server clock
// from ntc.sync round trips.
package clocksync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Reply is the server's answer to an ntc.sync request
type Reply struct {
	ServerTime int64 `json:"server_time"`
	Offset     int64 `json:"offset"`
}

// Estimate is one single-sample estimate, all values in milliseconds
type Estimate struct {
	ClientOffset int64     `json:"client_offset"`
	ServerOffset int64     `json:"server_offset"`
	Average      float64   `json:"average"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Estimator keeps the latest clock offset estimate.
//
// The estimate is advisory: countdown arithmetic still uses the raw local clock.
type Estimator struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	latest *Estimate
}

// NewEstimator creates an estimator reading local time from clock
func NewEstimator(clock clockwork.Clock) *Estimator {
	return &Estimator{clock: clock}
}

// Request returns the payload of an outbound ntc.sync action, stamped with local send time
func (e *Estimator) Request() map[string]any {
	return map[string]any{"client_time": e.clock.Now().UnixMilli()}
}

// Observe folds a reply into a new estimate: (server_time - now + offset) / 2
func (e *Estimator) Observe(reply Reply) Estimate {
	now := e.clock.Now()
	clientOffset := reply.ServerTime - now.UnixMilli()

	est := Estimate{
		ClientOffset: clientOffset,
		ServerOffset: reply.Offset,
		Average:      float64(clientOffset+reply.Offset) / 2,
		ObservedAt:   now,
	}

	e.mu.Lock()
	e.latest = &est
	e.mu.Unlock()

	log.Debug().
		Int64("client_offset_ms", est.ClientOffset).
		Int64("server_offset_ms", est.ServerOffset).
		Float64("estimate_ms", est.Average).
		Msg("clock offset estimated")

	return est
}

// Latest returns the most recent estimate, ok is false before the first reply
func (e *Estimator) Latest() (Estimate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.latest == nil {
		return Estimate{}, false
	}
	return *e.latest, true
}

// Reset forgets the current estimate
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.latest = nil
	e.mu.Unlock()
}
