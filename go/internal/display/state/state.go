// Package state holds the in-memory mirror of the server-pushed show state.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/mcdev12/showcall/go/internal/display/screens"
	"github.com/mcdev12/showcall/go/internal/display/timer"
)

var (
	// ErrInvalidPatch marks a message whose fields would corrupt the shared state
	ErrInvalidPatch = errors.New("invalid state patch")
	// ErrNoState is returned by accessors while nothing has been received
	ErrNoState = errors.New("no state")
	// ErrNoTimer is returned when the state carries no usable timer
	ErrNoTimer = errors.New("no timer in state")
)

// Fields are the top-level keys of a JSON object, values kept verbatim
type Fields map[string]json.RawMessage

// Keys returns the field names in sorted order
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// reservedKeys never reach the shared state, the router consumes them
var reservedKeys = []string{"status", "rig", "stream"}

// Patch is a validated set of top-level fields ready to merge
type Patch struct {
	fields Fields
}

// NewPatch copies msg without the reserved keys and validates the fields that
// renderers compute from. The whole patch is rejected if any of them is malformed.
func NewPatch(msg Fields) (Patch, error) {
	fields := make(Fields, len(msg))
	for k, v := range msg {
		fields[k] = v
	}
	for _, k := range reservedKeys {
		delete(fields, k)
	}

	if raw, ok := fields["timer"]; ok {
		if _, err := decodeTimer(raw); err != nil {
			return Patch{}, fmt.Errorf("%w: timer: %v", ErrInvalidPatch, err)
		}
	}
	if raw, ok := fields["view"]; ok {
		if _, _, err := decodeView(raw); err != nil {
			return Patch{}, fmt.Errorf("%w: view: %v", ErrInvalidPatch, err)
		}
	}
	if raw, ok := fields["context"]; ok && !isObject(raw) && !isNull(raw) {
		return Patch{}, fmt.Errorf("%w: context is not an object", ErrInvalidPatch)
	}

	return Patch{fields: fields}, nil
}

// Has reports whether the patch sets key
func (p Patch) Has(key string) bool {
	_, ok := p.fields[key]
	return ok
}

// Get returns the raw value the patch sets for key
func (p Patch) Get(key string) (json.RawMessage, bool) {
	v, ok := p.fields[key]
	return v, ok
}

// Len returns the number of fields in the patch
func (p Patch) Len() int {
	return len(p.fields)
}

// Store is the shared state. It is nil until the first merge and after Clear.
//
// One writer (the message router) mutates it; readers get snapshot copies.
type Store struct {
	mu     sync.RWMutex
	fields Fields
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Apply shallow-merges the patch: top-level keys are replaced, last write wins
func (s *Store) Apply(p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields == nil {
		s.fields = make(Fields, len(p.fields))
	}
	for k, v := range p.fields {
		s.fields[k] = v
	}
}

// Clear drops the state back to nil
func (s *Store) Clear() {
	s.mu.Lock()
	s.fields = nil
	s.mu.Unlock()
}

// Present reports whether any state has been received
func (s *Store) Present() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fields != nil
}

// Snapshot returns a copy of the state, nil when there is none
func (s *Store) Snapshot() Fields {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.fields == nil {
		return nil
	}
	return maps.Clone(s.fields)
}

// MarshalJSON renders the state, "null" when there is none
func (s *Store) MarshalJSON() ([]byte, error) {
	snap := s.Snapshot()
	if snap == nil {
		return []byte("null"), nil
	}
	return json.Marshal(snap)
}

// Get returns the raw value of a top-level key
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.fields[key]
	return v, ok
}

// Timer returns the timer spec, or ErrNoTimer when it is absent
func (s *Store) Timer() (timer.Spec, error) {
	if !s.Present() {
		return timer.Spec{}, ErrNoState
	}
	raw, ok := s.Get("timer")
	if !ok || isNull(raw) {
		return timer.Spec{}, ErrNoTimer
	}
	return decodeTimer(raw)
}

// Template returns the active screen flavour
func (s *Store) Template() string {
	return s.stringField("template")
}

// Message returns the stream message
func (s *Store) Message() string {
	return s.stringField("message")
}

// Entry returns context.entry, the current schedule item
func (s *Store) Entry() (json.RawMessage, bool) {
	raw, ok := s.Get("context")
	if !ok || !isObject(raw) {
		return nil, false
	}
	var ctx struct {
		Entry json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(raw, &ctx); err != nil || len(ctx.Entry) == 0 || isNull(ctx.Entry) {
		return nil, false
	}
	return ctx.Entry, true
}

// ActiveScreens returns view.active_screens. ok is false when the state has no view.
func (s *Store) ActiveScreens() ([]screens.Screen, bool) {
	raw, ok := s.Get("view")
	if !ok {
		return nil, false
	}
	list, present, err := decodeView(raw)
	if err != nil || !present {
		return nil, false
	}
	return list, true
}

// DisplaysMessages reports whether the template shows the stream message
func (s *Store) DisplaysMessages() bool {
	switch s.Template() {
	case "schedule", "message":
		return true
	}
	return false
}

func (s *Store) stringField(key string) string {
	raw, ok := s.Get(key)
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

type wireTimer struct {
	Target    *int64 `json:"target"`
	Offset    *int64 `json:"offset"`
	StartedAt *int64 `json:"started_at"`
	Message   string `json:"message"`
}

func decodeTimer(raw json.RawMessage) (timer.Spec, error) {
	if !isObject(raw) {
		return timer.Spec{}, errors.New("not an object")
	}
	var w wireTimer
	if err := json.Unmarshal(raw, &w); err != nil {
		return timer.Spec{}, err
	}
	if w.Target == nil {
		return timer.Spec{}, errors.New("missing target")
	}
	if w.Offset == nil {
		return timer.Spec{}, errors.New("missing offset")
	}
	return timer.Spec{
		Target:    *w.Target,
		Offset:    *w.Offset,
		StartedAt: w.StartedAt,
		Message:   w.Message,
	}, nil
}

// decodeView returns the active screens of a view object; present is false when
// the view carries no active_screens key
func decodeView(raw json.RawMessage) ([]screens.Screen, bool, error) {
	if isNull(raw) {
		return nil, false, nil
	}
	if !isObject(raw) {
		return nil, false, errors.New("not an object")
	}
	var v struct {
		ActiveScreens json.RawMessage `json:"active_screens"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	if len(v.ActiveScreens) == 0 || isNull(v.ActiveScreens) {
		return nil, false, nil
	}
	list, err := screens.DecodeList(v.ActiveScreens)
	if err != nil {
		return nil, false, err
	}
	return list, true, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
