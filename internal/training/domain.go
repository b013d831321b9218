package training

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the batch does not exist.
	ErrNotFound = errors.New("training: batch not found")
	// ErrCapacityExceeded indicates the batch has no free slot.
	ErrCapacityExceeded = errors.New("training: capacity exceeded")
	// ErrBatchInactive indicates the batch is not accepting enrollments.
	ErrBatchInactive = errors.New("training: batch inactive")
	// ErrBatchNotEmpty indicates a delete attempt on a batch with enrollments.
	ErrBatchNotEmpty = errors.New("training: batch not empty")
	// ErrDuplicateCode indicates the batch code is already taken.
	ErrDuplicateCode = errors.New("training: batch code already exists")
)

// Batch is a scheduled training cohort with bounded capacity.
type Batch struct {
	ID              int64
	Code            string
	TrainingName    string
	MaxCapacity     int
	CurrentEnrolled int
	IsActive        bool
	StartDate       time.Time
	EndDate         time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AvailableSlots returns the remaining capacity, never negative.
func (b Batch) AvailableSlots() int {
	slots := b.MaxCapacity - b.CurrentEnrolled
	if slots < 0 {
		return 0
	}
	return slots
}

// Reservation is the token returned by a successful slot reservation.
type Reservation struct {
	Token   string
	BatchID int64
}
