package timer

import "fmt"

// Pieces is a signed millisecond duration split for display
type Pieces struct {
	Sign         string
	Minutes      int64
	Seconds      int64
	Milliseconds int64
}

// Split breaks a duration in milliseconds into display pieces.
//
// Positive durations round down and negative ones round up, so a countdown that
// crosses zero shows "-0:00" only once it is actually below zero.
func Split(durationMs int64) Pieces {
	sign := ""
	if durationMs < 0 {
		sign = "-"
	}

	// floor for d > 0 and ceil for d <= 0 are both truncation on integers
	totalSeconds := durationMs / 1000

	return Pieces{
		Sign:         sign,
		Minutes:      abs(totalSeconds / 60),
		Seconds:      abs(totalSeconds % 60),
		Milliseconds: abs(durationMs % 1000),
	}
}

// MinutesString returns the minutes with the sign prefix, unpadded
func (p Pieces) MinutesString() string {
	return fmt.Sprintf("%s%d", p.Sign, p.Minutes)
}

// SecondsString returns the seconds zero-padded to two digits
func (p Pieces) SecondsString() string {
	return fmt.Sprintf("%02d", p.Seconds)
}

// MillisecondsString returns the milliseconds zero-padded to three digits
func (p Pieces) MillisecondsString() string {
	return fmt.Sprintf("%03d", p.Milliseconds)
}

// Total reassembles the pieces into a signed duration in milliseconds.
func (p Pieces) Total() int64 {
	total := p.Minutes*60000 + p.Seconds*1000 + p.Milliseconds
	if p.Sign == "-" {
		return -total
	}
	return total
}

// Format renders "M:SS"
func Format(durationMs int64) string {
	p := Split(durationMs)
	return p.MinutesString() + ":" + p.SecondsString()
}

// FormatMillis renders "M:SS.mmm"
func FormatMillis(durationMs int64) string {
	p := Split(durationMs)
	return p.MinutesString() + ":" + p.SecondsString() + "." + p.MillisecondsString()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
