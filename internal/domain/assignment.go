package domain

import "time"

// AssignmentStatus represents the status of an assignment.
type AssignmentStatus string

// List of assignment statuses
const (
	AssignmentPending   AssignmentStatus = "PENDING"
	AssignmentAccepted  AssignmentStatus = "ACCEPTED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
)

// Assignment binds one transporter/vehicle/driver to one truck slot of a broadcast.
type Assignment struct {
	ID            string
	BroadcastID   string
	TransporterID string
	VehicleID     string
	DriverID      string
	Status        AssignmentStatus
	CreatedAt     time.Time
}

// Live reports whether the assignment still holds a slot.
func (a Assignment) Live() bool {
	return a.Status == AssignmentPending || a.Status == AssignmentAccepted
}

// AcceptRequest is a transporter's bid for one slot.
type AcceptRequest struct {
	BroadcastID   string
	TransporterID string
	VehicleID     string
	DriverID      string
}

// RejectReason explains a lost accept.
type RejectReason string

// List of reject reasons
const (
	ReasonAlreadyTaken    RejectReason = "ALREADY_TAKEN"
	ReasonExpired         RejectReason = "EXPIRED"
	ReasonCancelled       RejectReason = "CANCELLED"
	ReasonVehicleAssigned RejectReason = "VEHICLE_ALREADY_ASSIGNED"
)

// Message returns the user-facing text for the reason.
func (r RejectReason) Message() string {
	switch r {
	case ReasonAlreadyTaken:
		return "no longer available"
	case ReasonExpired:
		return "request expired"
	case ReasonCancelled:
		return "request cancelled"
	case ReasonVehicleAssigned:
		return "vehicle already assigned to this request"
	default:
		return string(r)
	}
}

// AcceptResult is the outcome of an accept attempt. Won=false is a normal result, not an error.
type AcceptResult struct {
	Won          bool
	AssignmentID string
	Reason       RejectReason
	Status       BroadcastStatus
	TrucksFilled int
	TrucksNeeded int
}

// CancelResult is the outcome of a cancel.
type CancelResult struct {
	AlreadyCancelled bool
	Reverted         []Assignment
}
