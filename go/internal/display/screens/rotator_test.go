package screens

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlayer struct {
	played    []int
	rewound   []int
	durations map[int]time.Duration
}

func (p *recordingPlayer) Play(index int, _ Video)   { p.played = append(p.played, index) }
func (p *recordingPlayer) Rewind(index int, _ Video) { p.rewound = append(p.rewound, index) }
func (p *recordingPlayer) Duration(index int, _ Video) (time.Duration, bool) {
	d, ok := p.durations[index]
	return d, ok
}

func mustList(t *testing.T, raw string) []Screen {
	t.Helper()
	list, err := DecodeList(json.RawMessage(raw))
	require.NoError(t, err)
	return list
}

func fired(r *Rotator) bool {
	select {
	case <-r.C():
		return true
	default:
		return false
	}
}

func TestRotatorAdvancesOnTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, &recordingPlayer{})
	list := mustList(t, `[{"timeout":1000},{"timeout":2000}]`)

	r.Restart(list)
	assert.Equal(t, 0, r.Cursor())

	clock.Advance(999 * time.Millisecond)
	assert.False(t, fired(r))

	clock.Advance(time.Millisecond)
	require.True(t, fired(r))
	r.Advance(list)
	assert.Equal(t, 1, r.Cursor())

	// second screen declared 2s
	clock.Advance(1999 * time.Millisecond)
	assert.False(t, fired(r))
	clock.Advance(time.Millisecond)
	require.True(t, fired(r))
	r.Advance(list)
	assert.Equal(t, 0, r.Cursor())
}

func TestRotatorShrunkListWrapsToZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, &recordingPlayer{})
	list := mustList(t, `[{"timeout":1000},{"timeout":2000}]`)

	r.Restart(list)
	clock.Advance(time.Second)
	require.True(t, fired(r))
	r.Advance(list)
	require.Equal(t, 1, r.Cursor())

	shrunk := mustList(t, `[{"timeout":1000}]`)
	clock.Advance(2 * time.Second)
	require.True(t, fired(r))
	r.Advance(shrunk)
	assert.Equal(t, 0, r.Cursor())

	idx, current, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, shrunk[0].Key(), current.Key())
}

func TestRotatorDefaultTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, nil)
	r.SetDefaultTimeout(3 * time.Second)

	r.Restart(mustList(t, `[{"type":"schedule"},{"type":"message","message":"hi"}]`))

	clock.Advance(2999 * time.Millisecond)
	assert.False(t, fired(r))
	clock.Advance(time.Millisecond)
	assert.True(t, fired(r))
}

func TestRotatorVideoUsesMediaDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	player := &recordingPlayer{durations: map[int]time.Duration{1: 7 * time.Second}}
	r := NewRotator(clock, player)
	list := mustList(t, `[{"type":"video","url":"a.mp4","timeout":500},{"type":"video","url":"b.mp4","timeout":500}]`)

	// duration of the first video is unknown, its explicit timeout applies
	r.Restart(list)
	assert.Equal(t, []int{0}, player.played)
	assert.Equal(t, []int{1}, player.rewound)

	clock.Advance(500 * time.Millisecond)
	require.True(t, fired(r))
	r.Advance(list)
	assert.Equal(t, []int{0, 1}, player.played)
	assert.Equal(t, []int{1, 0}, player.rewound)

	clock.Advance(6 * time.Second)
	assert.False(t, fired(r))
	clock.Advance(time.Second)
	assert.True(t, fired(r))
}

func TestRotatorReevaluateKeepsCursorAndTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, nil)
	list := mustList(t, `[{"timeout":1000},{"timeout":1000},{"timeout":1000}]`)

	r.Restart(list)
	clock.Advance(time.Second)
	require.True(t, fired(r))
	r.Advance(list)
	require.Equal(t, 1, r.Cursor())

	// same content on display: pending advance untouched
	clock.Advance(600 * time.Millisecond)
	r.Reevaluate(list)
	clock.Advance(400 * time.Millisecond)
	assert.True(t, fired(r))
	r.Advance(list)

	// current screen replaced out of turn: timer re-armed from now
	changed := mustList(t, `[{"timeout":1000},{"timeout":1000},{"timeout":4000}]`)
	clock.Advance(900 * time.Millisecond)
	r.Reevaluate(changed)
	assert.Equal(t, 2, r.Cursor())
	clock.Advance(3900 * time.Millisecond)
	assert.False(t, fired(r))
	clock.Advance(100 * time.Millisecond)
	assert.True(t, fired(r))
}

func TestRotatorRestartResetsCursor(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, nil)
	list := mustList(t, `[{"timeout":1000},{"timeout":1000}]`)

	r.Restart(list)
	clock.Advance(time.Second)
	require.True(t, fired(r))
	r.Advance(list)
	require.Equal(t, 1, r.Cursor())

	r.Restart(list)
	assert.Equal(t, 0, r.Cursor())
	assert.NotNil(t, r.C())
}

func TestRotatorIdleWithoutScreens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, nil)

	r.Restart(nil)
	assert.Nil(t, r.C())
	_, _, ok := r.Current()
	assert.False(t, ok)

	r.Restart(mustList(t, `[{"timeout":1000}]`))
	assert.NotNil(t, r.C())
	r.Reevaluate(nil)
	assert.Nil(t, r.C())
}

func TestRotatorOnlyOnePendingAdvance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, nil)

	r.Restart(mustList(t, `[{"timeout":1000}]`))
	r.Restart(mustList(t, `[{"timeout":5000}]`))

	clock.Advance(time.Second)
	assert.False(t, fired(r))
	clock.Advance(4 * time.Second)
	assert.True(t, fired(r))
}
