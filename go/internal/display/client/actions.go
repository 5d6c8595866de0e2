package client

import (
	"fmt"
)

// ActionArgs carries the optional inputs of a control action
type ActionArgs struct {
	Message  *string `json:"message,omitempty"`
	ViewName string  `json:"view_name,omitempty"`
	Time     *int64  `json:"time,omitempty"`
	Diff     *int64  `json:"diff,omitempty"`
	Delta    *int64  `json:"delta,omitempty"`
}

// Controls are the operator actions of the control panel
type Controls struct {
	sender  Sender
	session *Session
}

// NewControls creates controls sending through sender
func NewControls(sender Sender, session *Session) *Controls {
	return &Controls{sender: sender, session: session}
}

// SetTimer sets the timer target in milliseconds
func (c *Controls) SetTimer(ms int64) error {
	return c.sender.Send(ActionTimerSet, map[string]any{"time": ms})
}

// JogTimer shifts the running timer by diff milliseconds
func (c *Controls) JogTimer(diff int64) error {
	return c.sender.Send(ActionTimerJog, map[string]any{"diff": diff})
}

// AdjustTimer moves the target by delta, never below zero
func (c *Controls) AdjustTimer(delta int64) error {
	spec, err := c.session.store.Timer()
	if err != nil {
		return fmt.Errorf("adjust timer: %w", err)
	}
	return c.SetTimer(max(spec.Target+delta, 0))
}

// SetStreamMessage sets the message shown on stream screens
func (c *Controls) SetStreamMessage(message string) error {
	return c.sender.Send(ActionStreamMessage, map[string]any{"message": message})
}

// SetTimerMessage sets the message shown under the timer
func (c *Controls) SetTimerMessage(message string) error {
	return c.sender.Send(ActionTimerSetMessage, map[string]any{"message": message})
}

// AssignView assigns a waiting display to the named view
func (c *Controls) AssignView(viewName string) error {
	return c.sender.Send(ActionViewAssign, map[string]any{"view_name": viewName})
}

// HandleAction dispatches an action by name the way the control panel does:
// message actions default to the message currently in the state.
func (c *Controls) HandleAction(name string, args ActionArgs) error {
	switch name {
	case ActionStreamMessage:
		msg := c.session.store.Message()
		if args.Message != nil {
			msg = *args.Message
		}
		return c.SetStreamMessage(msg)

	case ActionTimerSetMessage:
		msg := ""
		if spec, err := c.session.store.Timer(); err == nil {
			msg = spec.Message
		}
		if args.Message != nil {
			msg = *args.Message
		}
		return c.SetTimerMessage(msg)

	case ActionViewAssign:
		if args.ViewName == "" {
			return fmt.Errorf("%s: view_name is required", name)
		}
		return c.AssignView(args.ViewName)

	case ActionTimerSet:
		switch {
		case args.Time != nil:
			return c.SetTimer(*args.Time)
		case args.Delta != nil:
			return c.AdjustTimer(*args.Delta)
		}
		return fmt.Errorf("%s: time or delta is required", name)

	case ActionTimerJog:
		if args.Diff == nil {
			return fmt.Errorf("%s: diff is required", name)
		}
		return c.JogTimer(*args.Diff)

	default:
		return c.sender.Send(name, nil)
	}
}
