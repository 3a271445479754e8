package handlers

import "time"

type locationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type createBroadcastRequest struct {
	VehicleType    string      `json:"vehicle_type"`
	VehicleSubtype string      `json:"vehicle_subtype,omitempty"`
	Pickup         locationDTO `json:"pickup"`
	Drop           locationDTO `json:"drop"`
	DistanceKm     float64     `json:"distance_km"`
	TrucksNeeded   int         `json:"trucks_needed"`
}

type broadcastDTO struct {
	ID             string      `json:"id"`
	CustomerID     string      `json:"customer_id"`
	VehicleType    string      `json:"vehicle_type"`
	VehicleSubtype string      `json:"vehicle_subtype,omitempty"`
	Pickup         locationDTO `json:"pickup"`
	Drop           locationDTO `json:"drop"`
	DistanceKm     float64     `json:"distance_km"`
	FarePerTruck   int64       `json:"fare_per_truck"`
	TrucksNeeded   int         `json:"trucks_needed"`
	TrucksFilled   int         `json:"trucks_filled"`
	Status         string      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
}

type createBroadcastResponse struct {
	Broadcast    broadcastDTO `json:"broadcast"`
	Deduplicated bool         `json:"deduplicated"`
	Notified     int          `json:"notified"`
}

type assignmentDTO struct {
	ID            string    `json:"id"`
	TransporterID string    `json:"transporter_id"`
	VehicleID     string    `json:"vehicle_id"`
	DriverID      string    `json:"driver_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type broadcastViewResponse struct {
	Broadcast   broadcastDTO    `json:"broadcast"`
	Assignments []assignmentDTO `json:"assignments"`
}

type acceptRequest struct {
	VehicleID string `json:"vehicle_id"`
	DriverID  string `json:"driver_id"`
}

type acceptResponse struct {
	Won          bool   `json:"won"`
	AssignmentID string `json:"assignment_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	Status       string `json:"status,omitempty"`
	TrucksFilled int    `json:"trucks_filled"`
	TrucksNeeded int    `json:"trucks_needed"`
}

type cancelResponse struct {
	AlreadyCancelled bool            `json:"already_cancelled"`
	Reverted         []assignmentDTO `json:"reverted"`
}
