package state

import (
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEvent = `{
	"name": "PyCon",
	"path": "pycon-2026",
	"timezone": "Europe/Warsaw",
	"template": {
		"default_screen_timeout": 7000,
		"default_display": "scene",
		"branding_primary_color": "#ffcc00",
		"branding_logo_max_width": 120,
		"title": "{event.name}"
	}
}`

func TestParseEventMeta(t *testing.T) {
	meta, err := ParseEventMeta(json.RawMessage(sampleEvent))
	require.NoError(t, err)

	assert.Equal(t, "PyCon", meta.Name)
	assert.Equal(t, "Europe/Warsaw", meta.Timezone)
	assert.Equal(t, 7*time.Second, meta.DefaultScreenTimeout())
	assert.Equal(t, "scene", meta.Template.DefaultDisplay)
	assert.Len(t, meta.Template.Fields, 5)
}

func TestParseEventMetaRejectsNonObject(t *testing.T) {
	_, err := ParseEventMeta(json.RawMessage(`"pycon"`))
	assert.Error(t, err)
}

func TestBrandingVariables(t *testing.T) {
	meta, err := ParseEventMeta(json.RawMessage(sampleEvent))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"--primary-color":  `"#ffcc00"`,
		"--logo-max-width": `120`,
	}, meta.Branding())
}

func TestBrandingFromTemplate(t *testing.T) {
	template, ok := TemplateFromEvent(json.RawMessage(sampleEvent))
	require.True(t, ok)
	assert.Contains(t, BrandingVariables(template), "--primary-color")

	_, ok = TemplateFromEvent(json.RawMessage(`{"name":"no template"}`))
	assert.False(t, ok)
}

func TestFormatTime(t *testing.T) {
	meta, err := ParseEventMeta(json.RawMessage(sampleEvent))
	require.NoError(t, err)

	// 07:05 UTC is 09:05 in Warsaw during summer time
	at := time.Date(2026, time.July, 1, 7, 5, 0, 0, time.UTC)
	assert.Equal(t, "09:05", meta.FormatTime(at, false))
	assert.Equal(t, "9:05", meta.FormatTime(at, true))

	var none *EventMeta
	assert.Equal(t, "07:05", none.FormatTime(at, false))
}

func TestUnknownTimezoneFallsBackToUTC(t *testing.T) {
	meta, err := ParseEventMeta(json.RawMessage(`{"timezone":"Mars/Olympus"}`))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, meta.Location())
}
