package workflow

import (
	"errors"
	"time"
)

// Stage is a candidate's position in the onboarding pipeline.
type Stage string

// Pipeline stages. The forward path is screening -> orientation ->
// enrollment -> enrolled. A failed screening parks the candidate on hold;
// the only way out of enrolled is dropping.
const (
	StagePendingScreening   Stage = "PENDING_SCREENING"
	StagePendingOrientation Stage = "PENDING_ORIENTATION"
	StagePendingEnrollment  Stage = "PENDING_ENROLLMENT"
	StageEnrolled           Stage = "ENROLLED"
	StageOnHold             Stage = "ON_HOLD"
	StageDropped            Stage = "DROPPED"
)

// Valid reports whether the stage is one of the known pipeline stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePendingScreening, StagePendingOrientation, StagePendingEnrollment, StageEnrolled, StageOnHold, StageDropped:
		return true
	}
	return false
}

// Terminal reports whether no forward transition leaves the stage. ON_HOLD
// has no re-activation path in this core and is treated as terminal.
func (s Stage) Terminal() bool {
	return s == StageDropped || s == StageOnHold
}

var (
	// ErrNotFound indicates the candidate does not exist.
	ErrNotFound = errors.New("workflow: candidate not found")
	// ErrInvalidTransition indicates the candidate's current stage does not
	// match the operation's precondition, including stale concurrent reads.
	ErrInvalidTransition = errors.New("workflow: invalid transition")
)

// Candidate is a person moving through the onboarding pipeline. Personal
// fields are opaque to the engine; only Stage, StageEnteredAt, Version and
// AssignedBatchID drive transitions.
type Candidate struct {
	ID             int64
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	City           string
	State          string
	Stage          Stage
	StageEnteredAt time.Time
	// AssignedBatchID is non-nil exactly while the candidate is ENROLLED.
	AssignedBatchID *int64
	// Version increments on every transition; stage updates are guarded by it.
	Version int64

	ScreeningCompletedAt   *time.Time
	ScreeningCompletedBy   int64
	ScreeningNotes         string
	OrientationCompletedAt *time.Time
	OrientationCompletedBy int64
	OrientationNotes       string
	EnrolledAt             *time.Time
	EnrolledBy             int64
	EnrollmentNotes        string
	DropReason             string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates per-stage candidate counts for the dashboard.
type Stats struct {
	PendingScreening   int
	PendingOrientation int
	PendingEnrollment  int
	Enrolled           int
	OnHold             int
	Dropped            int
}
