package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/showcall/go/internal/display/clocksync"
	"github.com/mcdev12/showcall/go/internal/display/screens"
	"github.com/mcdev12/showcall/go/internal/display/state"
	"github.com/mcdev12/showcall/go/internal/display/timer"
)

// FlashWindow is how long the timer flashes after a timer.flash
const FlashWindow = 3000 * time.Millisecond

// StreamCredentials are handed to timer displays that stream their view
type StreamCredentials struct {
	ID  string `json:"id"`
	Pwd string `json:"pwd"`
}

// Session is everything one display client mirrors from the server. It is created
// once per client lifetime and mutated only by the router on the connection
// manager's loop; other goroutines read it through Snapshot and the accessors.
type Session struct {
	clock     clockwork.Clock
	store     *state.Store
	estimator *clocksync.Estimator
	rotator   *screens.Rotator

	mu          sync.RWMutex
	id          string
	display     string
	event       *state.EventMeta
	role        string
	rig         string
	viewName    string
	stream      *StreamCredentials
	branding    map[string]string
	flashUntil  time.Time
	flashTimer  clockwork.Timer
	connections int
	connState   ConnState
}

// NewSession creates an empty session. A nil player logs video playback only.
func NewSession(clock clockwork.Clock, player screens.Player) *Session {
	return &Session{
		id:        uuid.New().String(),
		clock:     clock,
		store:     state.NewStore(),
		estimator: clocksync.NewEstimator(clock),
		rotator:   screens.NewRotator(clock, player),
		branding:  map[string]string{},
		connState: StateConnecting,
	}
}

// ID identifies this session in logs, status output and KV keys. A forced
// reload starts a new session with a new ID.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SetDisplay overrides the template's default display for this client
func (s *Session) SetDisplay(name string) {
	s.mu.Lock()
	s.display = name
	s.mu.Unlock()
}

// Display is the display this client renders: the local override, else the
// template default
func (s *Session) Display() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayLocked()
}

func (s *Session) displayLocked() string {
	if s.display != "" {
		return s.display
	}
	if s.event != nil {
		return s.event.Template.DefaultDisplay
	}
	return ""
}

// Store returns the shared state
func (s *Session) Store() *state.Store {
	return s.store
}

// Estimator returns the clock offset estimator
func (s *Session) Estimator() *clocksync.Estimator {
	return s.estimator
}

// Rotator returns the screen rotator
func (s *Session) Rotator() *screens.Rotator {
	return s.rotator
}

// Role returns the role the server assigned in init
func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Rig returns the rig the client is attached to
func (s *Session) Rig() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rig
}

// ViewName returns the name shown while waiting for assignment
func (s *Session) ViewName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewName
}

// Stream returns the stream credentials of a timer view, nil when none were sent
func (s *Session) Stream() *StreamCredentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

// Event returns the event configuration of the last init
func (s *Session) Event() *state.EventMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.event
}

// Branding returns a copy of the current branding variables
func (s *Session) Branding() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.branding))
	for k, v := range s.branding {
		out[k] = v
	}
	return out
}

// Flashing reports whether the timer is inside a flash window
func (s *Session) Flashing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Now().Before(s.flashUntil)
}

// Connections returns how many sockets this session has opened
func (s *Session) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections
}

// Timer returns the countdown source for samplers
func (s *Session) Timer() (timer.Spec, bool) {
	spec, err := s.store.Timer()
	if err != nil {
		return timer.Spec{}, false
	}
	return spec, true
}

// AdvanceScreen handles a fired rotation timer against the current screen list
func (s *Session) AdvanceScreen() {
	list, _ := s.store.ActiveScreens()
	s.rotator.Advance(list)
}

// Reset discards everything, leaving the session as if freshly created
func (s *Session) Reset() {
	s.store.Clear()
	s.estimator.Reset()
	s.rotator.Restart(nil)
	s.rotator.SetDefaultTimeout(0)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = uuid.New().String()
	s.event = nil
	s.role = ""
	s.rig = ""
	s.viewName = ""
	s.stream = nil
	s.branding = map[string]string{}
	s.flashUntil = time.Time{}
	s.stopFlashTimer()
	s.connections = 0
}

func (s *Session) markConnected() {
	s.mu.Lock()
	s.connections++
	s.mu.Unlock()
}

func (s *Session) setConnState(cs ConnState) {
	s.mu.Lock()
	s.connState = cs
	s.mu.Unlock()
}

// flash opens a new flash window, replacing a running one
func (s *Session) flash() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flashUntil = s.clock.Now().Add(FlashWindow)
	s.stopFlashTimer()
	s.flashTimer = s.clock.NewTimer(FlashWindow)
}

// flashEnded fires when the flash window closes. Nil while no window is open.
func (s *Session) flashEnded() <-chan time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.flashTimer == nil {
		return nil
	}
	return s.flashTimer.Chan()
}

func (s *Session) clearFlashTimer() {
	s.mu.Lock()
	s.flashTimer = nil
	s.mu.Unlock()
}

// stopFlashTimer must be called with s.mu held
func (s *Session) stopFlashTimer() {
	if s.flashTimer == nil {
		return
	}
	if !s.flashTimer.Stop() {
		select {
		case <-s.flashTimer.Chan():
		default:
		}
	}
	s.flashTimer = nil
}

func (s *Session) assign(event *state.EventMeta, role, rig string, stream *StreamCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.event = event
	s.role = role
	s.rig = rig
	if stream != nil {
		s.stream = stream
	}
}

func (s *Session) setViewName(name string) {
	s.mu.Lock()
	s.viewName = name
	s.mu.Unlock()
}

func (s *Session) setBranding(vars map[string]string) {
	s.mu.Lock()
	s.branding = vars
	s.mu.Unlock()
}

// TimerView is the countdown as renderers show it
type TimerView struct {
	RemainingMs int64  `json:"remaining_ms"`
	Display     string `json:"display"`
	DisplayMs   string `json:"display_ms"`
	Running     bool   `json:"running"`
	Message     string `json:"message,omitempty"`
}

// ScreenView is the screen currently on display
type ScreenView struct {
	Index  int             `json:"index"`
	Kind   screens.Kind    `json:"kind"`
	Screen json.RawMessage `json:"screen"`
}

// Snapshot is a point-in-time view of the session for renderers and publishers
type Snapshot struct {
	SessionID  string       `json:"session_id"`
	Connection string       `json:"connection"`
	Role       string       `json:"role,omitempty"`
	Rig        string       `json:"rig,omitempty"`
	ViewName   string       `json:"view_name,omitempty"`
	Display    string       `json:"display,omitempty"`
	State      state.Fields `json:"state"`

	// Entry is context.entry, the schedule item on now
	Entry            json.RawMessage `json:"entry,omitempty"`
	DisplaysMessages bool            `json:"displays_messages"`
	// MessagesAltPosition moves the message out of the schedule's way
	MessagesAltPosition bool `json:"messages_alt_position"`
	// LocalTime is the wall clock in the event timezone, "15:04"
	LocalTime string `json:"local_time,omitempty"`

	Flashing bool                `json:"flashing"`
	Timer    *TimerView          `json:"timer,omitempty"`
	Screen   *ScreenView         `json:"screen,omitempty"`
	Branding map[string]string   `json:"branding"`
	Clock    *clocksync.Estimate `json:"clock_offset,omitempty"`
	TakenAt  time.Time           `json:"taken_at"`
}

// Snapshot captures the session at the current local time
func (s *Session) Snapshot() Snapshot {
	now := s.clock.Now()

	s.mu.RLock()
	snap := Snapshot{
		SessionID:  s.id,
		Connection: s.connState.String(),
		Role:       s.role,
		Rig:        s.rig,
		ViewName:   s.viewName,
		Display:    s.displayLocked(),
		Flashing:   now.Before(s.flashUntil),
		TakenAt:    now,
	}
	if s.event != nil {
		snap.LocalTime = s.event.FormatTime(now, false)
	}
	s.mu.RUnlock()

	snap.State = s.store.Snapshot()
	snap.Branding = s.Branding()
	snap.DisplaysMessages = s.store.DisplaysMessages()
	snap.MessagesAltPosition = s.store.Template() == "schedule"
	if entry, ok := s.store.Entry(); ok {
		snap.Entry = entry
	}

	if spec, ok := s.Timer(); ok {
		remaining := spec.RemainingAt(now)
		snap.Timer = &TimerView{
			RemainingMs: remaining,
			Display:     timer.Format(remaining),
			DisplayMs:   timer.FormatMillis(remaining),
			Running:     spec.Running(),
			Message:     spec.Message,
		}
	}

	if idx, screen, ok := s.rotator.Current(); ok {
		snap.Screen = &ScreenView{
			Index:  idx,
			Kind:   screen.Kind(),
			Screen: json.RawMessage(screen.Key()),
		}
	}

	if est, ok := s.estimator.Latest(); ok {
		snap.Clock = &est
	}

	return snap
}
