// Package grid composes simulated Grid entities out of the kernel and the
// allocation policies: resources, the information services, and the message
// payloads they exchange.
package grid

import (
	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/policy"
)

// SubmitRequest asks a resource to execute a gridlet.
type SubmitRequest struct {
	Gridlet   *sim.Gridlet
	AckWanted bool
}

// GridletRef identifies a gridlet for cancel/pause/resume/move/status
// requests.
type GridletRef struct {
	GridletID int
	UserID    int
}

// StatusReply answers a GRIDLET_STATUS inquiry.
type StatusReply struct {
	GridletID int
	Status    sim.GridletStatus
}

// CreateReservation is the payload of a reservation CREATE message.
type CreateReservation struct {
	Start    float64
	Duration float64
	NumPE    int
}

// ModifyReservation is the payload of a reservation MODIFY message.
type ModifyReservation struct {
	ReservationID int
	Start         float64
	Duration      float64
	NumPE         int
}

// ReservationRef identifies a reservation for COMMIT/CANCEL/STATUS. An
// optional gridlet may be bundled with COMMIT and is submitted on success.
type ReservationRef struct {
	ReservationID int
	Gridlet       *sim.Gridlet
}

// FreeTimeQuery is the payload of LIST_FREE_TIME.
type FreeTimeQuery struct {
	From float64
	To   float64
}

// RegistryEntry is what a resource registers with its information service.
type RegistryEntry struct {
	ResourceID int
	Name       string
	Char       sim.ResourceCharacteristics
	ARCapable  bool
}

// ResourceListReply answers resource-list inquiries.
type ResourceListReply struct {
	Resources []RegistryEntry
}

// RegionalListReply answers INQUIRY_REGIONAL_GIS.
type RegionalListReply struct {
	RegionalIDs []int
}

// FailureNotice removes a resource from its GIS until re-registration.
type FailureNotice struct {
	ResourceID int
}

// ReservationResult re-exports the policy-level result for wire payloads.
type ReservationResult = policy.ReservationResult
