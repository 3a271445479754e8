package domain

import "time"

// Location is a geographic point.
type Location struct {
	Lat float64
	Lng float64
}

// Valid checks coordinate ranges.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Broadcast is a customer's shipment request being matched to transporters.
// Single-truck and multi-truck requests share this shape.
type Broadcast struct {
	ID             string
	CustomerID     string
	VehicleType    string
	VehicleSubtype string
	Pickup         Location
	Drop           Location
	DistanceKm     float64
	FarePerTruck   int64
	TrucksNeeded   int
	TrucksFilled   int
	Status         BroadcastStatus
	Fingerprint    string
	CreatedAt      time.Time
	StateChangedAt time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the broadcast's deadline has passed at now.
func (b *Broadcast) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt)
}

// SlotsLeft returns the number of unfilled trucks.
func (b *Broadcast) SlotsLeft() int {
	if b.TrucksFilled >= b.TrucksNeeded {
		return 0
	}
	return b.TrucksNeeded - b.TrucksFilled
}

// CreateRequest carries the customer's create parameters.
type CreateRequest struct {
	CustomerID     string
	VehicleType    string
	VehicleSubtype string
	Pickup         Location
	Drop           Location
	DistanceKm     float64
	TrucksNeeded   int
}

// CreateResult is returned by broadcast creation.
type CreateResult struct {
	Broadcast    Broadcast
	Deduplicated bool
	Notified     int
}

// Transition is one audit-trail row.
type Transition struct {
	BroadcastID string
	From        BroadcastStatus
	To          BroadcastStatus
	Trigger     string
	ChangedAt   time.Time
}

// BroadcastView is the query shape: current state plus its assignments.
type BroadcastView struct {
	Broadcast   Broadcast
	Assignments []Assignment
}
