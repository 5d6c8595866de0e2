package screens

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Player drives media playback for video screens. Index is the screen's position in
// the active list.
type Player interface {
	Play(index int, v Video)
	Rewind(index int, v Video)
	// Duration reports the media length once it is known
	Duration(index int, v Video) (time.Duration, bool)
}

// LogPlayer is the headless player: it logs playback transitions and knows only the
// durations the server declared.
type LogPlayer struct{}

func (LogPlayer) Play(index int, v Video) {
	log.Info().Int("screen", index).Str("url", v.URL).Msg("video playing")
}

func (LogPlayer) Rewind(index int, v Video) {
	log.Debug().Int("screen", index).Str("url", v.URL).Msg("video rewound")
}

func (LogPlayer) Duration(_ int, v Video) (time.Duration, bool) {
	if v.Duration == nil || *v.Duration <= 0 {
		return 0, false
	}
	return *v.Duration, true
}
