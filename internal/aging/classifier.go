package aging

import "time"

// Classification thresholds in whole days. A candidate is green for their
// first two calendar days in a stage, amber on days two and three, and red
// from day four onward.
const (
	greenMaxDays = 1
	amberMaxDays = 3
)

// Classify maps days spent in a stage to an urgency color. Every input maps
// to exactly one color; negative inputs clamp to green.
func Classify(daysInStage int) Color {
	switch {
	case daysInStage <= greenMaxDays:
		return ColorGreen
	case daysInStage <= amberMaxDays:
		return ColorAmber
	default:
		return ColorRed
	}
}

// DaysBetween returns the number of whole 24 hour periods elapsed between
// enteredAt and now. Future timestamps yield zero.
func DaysBetween(enteredAt, now time.Time) int {
	d := now.Sub(enteredAt)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
