package aging

import (
	"errors"
	"fmt"
	"time"

	"github.com/talentpath-hq/talentpath/internal/workflow"
)

// Color is the urgency band of an aging signal.
type Color string

const (
	ColorGreen Color = "GREEN"
	ColorAmber Color = "AMBER"
	ColorRed   Color = "RED"
)

// ParseColor validates a color string from the API.
func ParseColor(s string) (Color, error) {
	switch Color(s) {
	case ColorGreen, ColorAmber, ColorRed:
		return Color(s), nil
	}
	return "", errors.New("aging: unknown color " + s)
}

var (
	// ErrNotFound indicates the signal does not exist.
	ErrNotFound = errors.New("aging: signal not found")
)

// Signal is one candidate's aging indicator for their current stage. A
// signal is keyed by candidate; when the candidate moves to a new stage the
// recompute pass replaces the signal and clears its read and dismissed
// flags, so dismissal only suppresses the stay it was issued for.
type Signal struct {
	ID             int64
	CandidateID    int64
	CandidateName  string
	Phone          string
	Stage          workflow.Stage
	StageEnteredAt time.Time
	DaysInStage    int
	Color          Color
	Message        string
	Read           bool
	Dismissed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SignalMessage renders the board text for a candidate's current stay.
func SignalMessage(stage workflow.Stage, days int) string {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	switch stage {
	case workflow.StagePendingScreening:
		return fmt.Sprintf("Awaiting screening for %d %s", days, unit)
	case workflow.StagePendingOrientation:
		return fmt.Sprintf("Awaiting orientation for %d %s", days, unit)
	case workflow.StagePendingEnrollment:
		return fmt.Sprintf("Awaiting enrollment for %d %s", days, unit)
	case workflow.StageEnrolled:
		return fmt.Sprintf("Enrolled %d %s ago", days, unit)
	}
	return fmt.Sprintf("In stage %s for %d %s", stage, days, unit)
}

// Summary aggregates non-dismissed signals per color band.
type Summary struct {
	Green int `json:"green"`
	Amber int `json:"amber"`
	Red   int `json:"red"`
	Total int `json:"total"`
}
