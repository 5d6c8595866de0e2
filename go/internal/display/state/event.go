package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const brandingPrefix = "branding_"

// TemplateMeta is the event template as far as the client cares
type TemplateMeta struct {
	DefaultScreenTimeout int64  `json:"default_screen_timeout"`
	DefaultDisplay       string `json:"default_display"`
	Name                 string `json:"name"`

	// Fields keeps every key of the template, branding included
	Fields Fields `json:"-"`
}

// EventMeta is the event configuration delivered by init, replaced wholesale on each one
type EventMeta struct {
	Name     string       `json:"name"`
	Path     string       `json:"path"`
	Timezone string       `json:"timezone"`
	Template TemplateMeta `json:"template"`

	Raw      json.RawMessage `json:"-"`
	location *time.Location
}

// ParseEventMeta decodes the event object of an init message
func ParseEventMeta(raw json.RawMessage) (*EventMeta, error) {
	if !isObject(raw) {
		return nil, fmt.Errorf("event is not an object")
	}

	var meta EventMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var wrapper struct {
		Template json.RawMessage `json:"template"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("decode event template: %w", err)
	}
	if isObject(wrapper.Template) {
		if err := json.Unmarshal(wrapper.Template, &meta.Template.Fields); err != nil {
			return nil, fmt.Errorf("decode event template: %w", err)
		}
	}

	meta.Raw = append(json.RawMessage(nil), raw...)
	meta.location = time.UTC
	if meta.Timezone != "" {
		loc, err := time.LoadLocation(meta.Timezone)
		if err != nil {
			log.Warn().Err(err).Str("timezone", meta.Timezone).Msg("unknown event timezone, using UTC")
		} else {
			meta.location = loc
		}
	}

	return &meta, nil
}

// DefaultScreenTimeout is the rotation timeout for screens that do not declare one
func (m *EventMeta) DefaultScreenTimeout() time.Duration {
	if m == nil {
		return 0
	}
	return time.Duration(m.Template.DefaultScreenTimeout) * time.Millisecond
}

// Location returns the event timezone, UTC when unset or unknown
func (m *EventMeta) Location() *time.Location {
	if m == nil || m.location == nil {
		return time.UTC
	}
	return m.location
}

// FormatTime renders a 24h short wall clock time in the event timezone
func (m *EventMeta) FormatTime(t time.Time, trimLeadingZero bool) string {
	formatted := t.In(m.Location()).Format("15:04")
	if trimLeadingZero {
		formatted = strings.TrimLeft(formatted, "0")
	}
	return formatted
}

// Branding returns the branding variables of the event template
func (m *EventMeta) Branding() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return BrandingVariables(m.Template.Fields)
}

// BrandingVariables maps every branding_ key of a template to a themable variable:
// branding_primary_color becomes --primary-color. Values stay JSON encoded.
func BrandingVariables(template Fields) map[string]string {
	vars := make(map[string]string)
	for key, raw := range template {
		if !strings.HasPrefix(key, brandingPrefix) {
			continue
		}
		name := "--" + strings.ReplaceAll(strings.TrimPrefix(key, brandingPrefix), "_", "-")

		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping malformed branding value")
			continue
		}
		vars[name] = compact.String()
	}
	return vars
}

// TemplateFromEvent extracts the template fields of an event object
func TemplateFromEvent(raw json.RawMessage) (Fields, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var wrapper struct {
		Template Fields `json:"template"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Template == nil {
		return nil, false
	}
	return wrapper.Template, true
}
