package screens

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// FallbackTimeout applies when neither the screen nor the event declares a timeout
const FallbackTimeout = 5 * time.Second

// Rotator cycles through the active screens, keeping at most one advance pending.
//
// The rotator does not own a goroutine: whoever drives it selects on C() and calls
// Advance when it fires.
type Rotator struct {
	clock  clockwork.Clock
	player Player

	mu             sync.RWMutex
	defaultTimeout time.Duration
	cursor         int
	screens        []Screen
	previous       string
	hasPrevious    bool
	timer          clockwork.Timer
}

// NewRotator creates an idle rotator
func NewRotator(clock clockwork.Clock, player Player) *Rotator {
	if player == nil {
		player = LogPlayer{}
	}
	return &Rotator{
		clock:          clock,
		player:         player,
		defaultTimeout: FallbackTimeout,
	}
}

// SetDefaultTimeout sets the event-level timeout, non-positive values restore the fallback
func (r *Rotator) SetDefaultTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d <= 0 {
		d = FallbackTimeout
	}
	r.defaultTimeout = d
}

// C fires when the current screen's time is up. Nil while nothing is armed.
func (r *Rotator) C() <-chan time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.timer == nil {
		return nil
	}
	return r.timer.Chan()
}

// Restart rewinds to the first screen and forgets what was on display
func (r *Rotator) Restart(screens []Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cursor = 0
	r.hasPrevious = false
	r.previous = ""
	r.evaluate(screens)
}

// Reevaluate picks up a changed screen list without moving the cursor
func (r *Rotator) Reevaluate(screens []Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evaluate(screens)
}

// Advance moves to the next screen of the given list
func (r *Rotator) Advance(screens []Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timer = nil
	if len(screens) == 0 {
		r.evaluate(screens)
		return
	}

	r.cursor = (r.cursor + 1) % len(screens)
	// the landing screen always gets a fresh timeout, even when its content repeats
	r.hasPrevious = false
	r.evaluate(screens)
}

// Stop cancels the pending advance
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancel()
}

// Cursor returns the raw rotation counter
func (r *Rotator) Cursor() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.cursor
}

// Current returns the screen on display and its index
func (r *Rotator) Current() (int, Screen, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.screens) == 0 {
		return 0, nil, false
	}
	idx := r.cursor % len(r.screens)
	return idx, r.screens[idx], true
}

// evaluate must be called with r.mu held
func (r *Rotator) evaluate(screens []Screen) {
	r.screens = screens
	if len(screens) == 0 {
		r.cancel()
		r.hasPrevious = false
		return
	}

	idx := r.cursor % len(screens)
	current := screens[idx]
	if r.hasPrevious && current.Key() == r.previous {
		return
	}

	timeout := r.resolveTimeout(idx, current)

	for i, other := range screens {
		if v, ok := other.(Video); ok && i != idx {
			r.player.Rewind(i, v)
		}
	}
	if v, ok := current.(Video); ok {
		r.player.Play(idx, v)
	}

	r.arm(timeout)
	r.previous = current.Key()
	r.hasPrevious = true

	log.Debug().
		Int("screen", idx).
		Str("kind", string(current.Kind())).
		Dur("timeout", timeout).
		Msg("screen on display")
}

func (r *Rotator) resolveTimeout(idx int, s Screen) time.Duration {
	if v, ok := s.(Video); ok {
		if d, known := r.player.Duration(idx, v); known {
			return d
		}
	}
	if d, ok := s.Timeout(); ok && d > 0 {
		return d
	}
	return r.defaultTimeout
}

// arm replaces any pending advance with a new one
func (r *Rotator) arm(d time.Duration) {
	r.cancel()
	r.timer = r.clock.NewTimer(d)
}

func (r *Rotator) cancel() {
	if r.timer != nil {
		stopAndDrainTimer(r.timer)
		r.timer = nil
	}
}

// stopAndDrainTimer stops a timer and drains a tick that may already be buffered
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
