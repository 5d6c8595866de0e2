// Package screens models the rotating screens of a presentation view and the
// rotator that cycles through them.
package screens

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind tags a screen variant
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindMessage Kind = "message"
)

// ErrInvalidScreen is returned for screen entries that are not JSON objects
var ErrInvalidScreen = errors.New("invalid screen")

// Screen is one entry of view.active_screens: an Image, a Video or a Message
type Screen interface {
	Kind() Kind
	// Key is the screen's compact JSON, two screens with equal keys show the same content
	Key() string
	// Timeout is the explicit per-screen timeout, if the server declared one
	Timeout() (time.Duration, bool)
}

type common struct {
	key     string
	timeout *time.Duration
}

func (c common) Key() string {
	return c.key
}

func (c common) Timeout() (time.Duration, bool) {
	if c.timeout == nil {
		return 0, false
	}
	return *c.timeout, true
}

// Image is any non-media screen rendered from the server context (images, schedules,
// sponsor walls, title cards). Type keeps the server's tag.
type Image struct {
	common
	Type string
	URL  string
}

func (Image) Kind() Kind { return KindImage }

// Video is a media screen, its own duration decides how long it stays up
type Video struct {
	common
	URL string
	// Duration is the media length when the server declared it
	Duration *time.Duration
}

func (Video) Kind() Kind { return KindVideo }

// Message is a text screen
type Message struct {
	common
	Text string
}

func (Message) Kind() Kind { return KindMessage }

// Decode parses one screen entry. Entries without a recognised type decode as Image.
// Optional fields of the wrong JSON type are ignored for that screen only.
func Decode(raw json.RawMessage) (Screen, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidScreen
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScreen, err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScreen, err)
	}
	c := common{key: compact.String(), timeout: millisField(fields, "timeout")}

	typ := stringField(fields, "type")
	url := stringField(fields, "url")
	if url == "" {
		url = stringField(fields, "src")
	}

	switch Kind(typ) {
	case KindVideo:
		return Video{common: c, URL: url, Duration: millisField(fields, "duration")}, nil
	case KindMessage:
		text := stringField(fields, "message")
		if text == "" {
			text = stringField(fields, "text")
		}
		return Message{common: c, Text: text}, nil
	default:
		return Image{common: c, Type: typ, URL: url}, nil
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn().Str("field", key).RawJSON("value", raw).Msg("ignoring screen field that is not a string")
		return ""
	}
	return v
}

// millisField reads a millisecond amount. Fractions and numeric strings are accepted.
func millisField(fields map[string]json.RawMessage, key string) *time.Duration {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			log.Warn().Str("field", key).RawJSON("value", raw).Msg("ignoring screen field that is not a number")
			return nil
		}
		if ms, err = strconv.ParseFloat(s, 64); err != nil {
			log.Warn().Str("field", key).Str("value", s).Msg("ignoring screen field that is not a number")
			return nil
		}
	}

	d := time.Duration(ms * float64(time.Millisecond))
	return &d
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// DecodeList parses a JSON array of screens
func DecodeList(raw json.RawMessage) ([]Screen, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode screen list: %w", err)
	}

	list := make([]Screen, 0, len(entries))
	for i, entry := range entries {
		s, err := Decode(entry)
		if err != nil {
			return nil, fmt.Errorf("screen %d: %w", i, err)
		}
		list = append(list, s)
	}
	return list, nil
}
