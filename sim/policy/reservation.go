package policy

import (
	"github.com/gridlab/gridsim/sim/availability"
)

// ReservationStatus is the lifecycle state of an advance reservation.
type ReservationStatus string

const (
	ResRequested  ReservationStatus = "REQUESTED"
	ResAccepted   ReservationStatus = "ACCEPTED"
	ResCommitted  ReservationStatus = "COMMITTED"
	ResInProgress ReservationStatus = "IN_PROGRESS"
	ResFinished   ReservationStatus = "FINISHED"
	ResCanceled   ReservationStatus = "CANCELED"
	ResFailed     ReservationStatus = "FAILED"
)

// ReservationErrorCode enumerates the failure modes of reservation calls.
// Empty means success.
type ReservationErrorCode string

const (
	ErrNone             ReservationErrorCode = ""
	ErrNoARSupport      ReservationErrorCode = "NO_AR_SUPPORT"
	ErrInvalidID        ReservationErrorCode = "INVALID_ID"
	ErrExpired          ReservationErrorCode = "EXPIRED"
	ErrConflict         ReservationErrorCode = "CONFLICT"
	ErrOperationFailure ReservationErrorCode = "OPERATION_FAILURE"
)

// Reservation is one advance reservation held against a resource's profile.
type Reservation struct {
	ID         int
	Owner      int
	ResourceID int

	StartTime      float64
	Duration       float64
	NumPE          int
	SubmissionTime float64
	ExpiryTime     float64

	Ranges availability.RangeList
	Status ReservationStatus
}

// Finish returns the reservation's end time.
func (r *Reservation) Finish() float64 { return r.StartTime + r.Duration }

// ReservationResult is the sum-typed outcome of a reservation operation.
type ReservationResult struct {
	Reservation *Reservation
	Code        ReservationErrorCode
}

// OK reports whether the operation succeeded.
func (r ReservationResult) OK() bool { return r.Code == ErrNone }

// ReservationPolicy is implemented by allocation policies that honor
// advance reservations.
type ReservationPolicy interface {
	AllocationPolicy
	CreateReservation(owner int, start, duration float64, numPE int) ReservationResult
	CommitReservation(id int) ReservationResult
	CancelReservation(id int) ReservationResult
	ModifyReservation(id int, start, duration float64, numPE int) ReservationResult
	QueryReservation(id int) ReservationResult
	ListFreeTime(from, to float64) []availability.Slot
}

// SupportsReservations reports whether a policy honors advance
// reservations.
func SupportsReservations(p AllocationPolicy) bool {
	_, ok := p.(ReservationPolicy)
	return ok
}
