package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		duration int64
		minutes  string
		seconds  string
		millis   string
	}{
		{"zero", 0, "0", "00", "000"},
		{"negative one and a half seconds", -1500, "-0", "01", "500"},
		{"just under a minute", 59999, "0", "59", "999"},
		{"exactly a minute", 60000, "1", "00", "000"},
		{"ten minutes and change", 605250, "10", "05", "250"},
		{"just below zero", -1, "-0", "00", "001"},
		{"negative minute", -61001, "-1", "01", "001"},
		{"long overrun", -3723456, "-62", "03", "456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Split(tt.duration)
			assert.Equal(t, tt.minutes, p.MinutesString())
			assert.Equal(t, tt.seconds, p.SecondsString())
			assert.Equal(t, tt.millis, p.MillisecondsString())
		})
	}
}

func TestSplitPieces(t *testing.T) {
	assert.Equal(t, Pieces{Sign: "", Minutes: 0, Seconds: 0, Milliseconds: 0}, Split(0))
	assert.Equal(t, Pieces{Sign: "-", Minutes: 0, Seconds: 1, Milliseconds: 500}, Split(-1500))
}

func TestSplitReconstructs(t *testing.T) {
	for d := int64(-200000); d <= 200000; d += 777 {
		got := Split(d).Total()
		diff := got - d
		if diff < 0 {
			diff = -diff
		}
		assert.Less(t, diff, int64(1000), "duration %d", d)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0:00", Format(0))
	assert.Equal(t, "4:59", Format(299999))
	assert.Equal(t, "-0:01", Format(-1500))
	assert.Equal(t, "-0:01.500", FormatMillis(-1500))
	assert.Equal(t, "12:07.042", FormatMillis(727042))
}
