package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/showcall/go/internal/display/state"
)

// Status tags an inbound message
type Status string

const (
	StatusUnassigned Status = "unassigned"
	StatusSuccess    Status = "success"
	StatusTimerFlash Status = "timer.flash"
	StatusError      Status = "error"
	StatusSync       Status = "ntc.sync"
	StatusInit       Status = "init"
	StatusUpdate     Status = "update"
)

// Actions the client sends, or finds in the command of an update
const (
	ActionForceReload     = "config.force-reload"
	ActionSync            = "ntc.sync"
	ActionTick            = "event.tick"
	ActionUntick          = "event.untick"
	ActionTimerSet        = "timer.set"
	ActionTimerJog        = "timer.jog"
	ActionTimerStart      = "timer.start"
	ActionTimerStop       = "timer.stop"
	ActionTimerReset      = "timer.reset"
	ActionTimerFlash      = "timer.flash"
	ActionTimerSetMessage = "timer.set-message"
	ActionStreamMessage   = "stream.set-message"
	ActionViewAssign      = "view.assign"
)

// ControlRole is the operator role, exempt from forced reloads
const ControlRole = "control"

var (
	// ErrMalformedFrame is returned for payloads that cannot be decoded
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrNotConnected is returned when sending without a live socket
	ErrNotConnected = errors.New("not connected")
)

// Command is the command of an update: a bare action name or {"action": name}
type Command struct {
	Action string
}

// UnmarshalJSON accepts both encodings
func (c *Command) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &c.Action)
	}

	var obj struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	c.Action = obj.Action
	return nil
}

// Inbound is one decoded server message
type Inbound struct {
	Status  Status
	Command Command
	Fields  state.Fields
	Raw     []byte
}

// DecodeInbound parses a frame. Anything but a JSON object with well-typed status
// and command is ErrMalformedFrame.
func DecodeInbound(data []byte) (*Inbound, error) {
	var fields state.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}

	msg := &Inbound{Status: StatusUpdate, Fields: fields, Raw: data}

	if raw, ok := fields["status"]; ok && !isNull(raw) {
		var status string
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("%w: status: %v", ErrMalformedFrame, err)
		}
		msg.Status = Status(status)
	}

	if raw, ok := fields["command"]; ok {
		if err := json.Unmarshal(raw, &msg.Command); err != nil {
			return nil, fmt.Errorf("%w: command: %v", ErrMalformedFrame, err)
		}
	}

	return msg, nil
}

// Text returns a string field of the message
func (m *Inbound) Text(key string) string {
	raw, ok := m.Fields[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

// Action is an outbound message: {"action": Name, ...Payload}
type Action struct {
	Name    string
	Payload map[string]any
}

// MarshalJSON flattens the payload next to the action name
func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Payload)+1)
	for k, v := range a.Payload {
		out[k] = v
	}
	out["action"] = a.Name
	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
