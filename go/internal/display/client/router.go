package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showcall/go/internal/display/clocksync"
	"github.com/mcdev12/showcall/go/internal/display/state"
)

// ErrForcedReload is returned by the router after it discarded the session on a
// config.force-reload command. The caller is expected to start over.
var ErrForcedReload = errors.New("forced reload")

// Sender writes an action to the live socket
type Sender interface {
	Send(action string, payload map[string]any) error
}

// Notifier is told about every state change the router applies
type Notifier interface {
	Notify(snap Snapshot)
}

// Router applies inbound messages to a session
type Router struct {
	session  *Session
	sender   Sender
	notifier Notifier
}

// NewRouter creates a router for session. sender and notifier may be nil.
func NewRouter(session *Session, sender Sender, notifier Notifier) *Router {
	return &Router{
		session:  session,
		sender:   sender,
		notifier: notifier,
	}
}

// Route decodes and applies one frame. Malformed frames change nothing.
func (r *Router) Route(data []byte) error {
	msg, err := DecodeInbound(data)
	if err != nil {
		return err
	}
	return r.Apply(msg)
}

// Apply dispatches a decoded message on its status
func (r *Router) Apply(msg *Inbound) error {
	if msg.Command.Action == ActionForceReload && r.session.Role() != ControlRole {
		log.Info().Str("role", r.session.Role()).Msg("forced reload requested by server")
		r.session.Reset()
		r.notify()
		return ErrForcedReload
	}

	switch msg.Status {
	case StatusUnassigned:
		r.session.setViewName(msg.Text("name"))
		r.session.store.Clear()
		r.session.rotator.Restart(nil)
		log.Info().Str("view_name", r.session.ViewName()).Msg("waiting for assignment")
		r.notify()
		return nil

	case StatusSuccess:
		return nil

	case StatusTimerFlash:
		r.session.flash()
		r.notify()
		return nil

	case StatusError:
		log.Warn().
			Str("error", msg.Text("error")).
			Str("detail", msg.Text("detail")).
			Msg("server reported an error")
		return nil

	case StatusSync:
		return r.applySync(msg)

	case StatusInit:
		return r.applyInit(msg)

	default:
		return r.applyUpdate(msg)
	}
}

func (r *Router) applySync(msg *Inbound) error {
	var reply struct {
		ServerTime *int64 `json:"server_time"`
		Offset     *int64 `json:"offset"`
	}
	if err := json.Unmarshal(msg.Raw, &reply); err != nil {
		return fmt.Errorf("%w: ntc.sync: %v", ErrMalformedFrame, err)
	}
	if reply.ServerTime == nil || reply.Offset == nil {
		return fmt.Errorf("%w: ntc.sync without server_time or offset", ErrMalformedFrame)
	}

	r.session.estimator.Observe(clocksync.Reply{ServerTime: *reply.ServerTime, Offset: *reply.Offset})
	return nil
}

func (r *Router) applyInit(msg *Inbound) error {
	rawEvent, ok := msg.Fields["event"]
	if !ok {
		return fmt.Errorf("%w: init without event", ErrMalformedFrame)
	}
	event, err := state.ParseEventMeta(rawEvent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var stream *StreamCredentials
	if raw, ok := msg.Fields["stream"]; ok && !isNull(raw) {
		stream = &StreamCredentials{}
		if err := json.Unmarshal(raw, stream); err != nil {
			return fmt.Errorf("%w: stream: %v", ErrMalformedFrame, err)
		}
	}

	patch, err := state.NewPatch(msg.Fields)
	if err != nil {
		return err
	}

	s := r.session
	s.assign(event, msg.Text("role"), msg.Text("rig"), stream)

	// the first connection's init is authoritative, later ones re-measure the clock
	if s.Connections() > 1 {
		r.send(ActionSync, s.estimator.Request())
	}

	s.store.Apply(patch)

	s.rotator.SetDefaultTimeout(event.DefaultScreenTimeout())
	list, _ := s.store.ActiveScreens()
	s.rotator.Restart(list)

	s.setBranding(event.Branding())

	log.Info().
		Str("role", s.Role()).
		Str("rig", s.Rig()).
		Str("event", event.Name).
		Int("screens", len(list)).
		Msg("session initialised")

	r.notify()
	return nil
}

func (r *Router) applyUpdate(msg *Inbound) error {
	patch, err := state.NewPatch(msg.Fields)
	if err != nil {
		return err
	}

	s := r.session
	s.store.Apply(patch)

	if raw, ok := patch.Get("event"); ok {
		if template, ok := state.TemplateFromEvent(raw); ok {
			s.setBranding(state.BrandingVariables(template))
		}
	}

	switch msg.Command.Action {
	case ActionTick, ActionUntick:
		list, _ := s.store.ActiveScreens()
		s.rotator.Reevaluate(list)
	}

	log.Debug().
		Str("command", msg.Command.Action).
		Int("fields", patch.Len()).
		Msg("state updated")

	r.notify()
	return nil
}

func (r *Router) send(action string, payload map[string]any) {
	if r.sender == nil {
		return
	}
	if err := r.sender.Send(action, payload); err != nil {
		log.Debug().Err(err).Str("action", action).Msg("action dropped")
	}
}

func (r *Router) notify() {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(r.session.Snapshot())
}
