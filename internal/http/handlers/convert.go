package handlers

import "truck-dispatch/internal/domain"

func (r createBroadcastRequest) toModel(customerID string) domain.CreateRequest {
	return domain.CreateRequest{
		CustomerID:     customerID,
		VehicleType:    r.VehicleType,
		VehicleSubtype: r.VehicleSubtype,
		Pickup:         domain.Location{Lat: r.Pickup.Lat, Lng: r.Pickup.Lng},
		Drop:           domain.Location{Lat: r.Drop.Lat, Lng: r.Drop.Lng},
		DistanceKm:     r.DistanceKm,
		TrucksNeeded:   r.TrucksNeeded,
	}
}

func broadcastToResponse(b domain.Broadcast) broadcastDTO {
	return broadcastDTO{
		ID:             b.ID,
		CustomerID:     b.CustomerID,
		VehicleType:    b.VehicleType,
		VehicleSubtype: b.VehicleSubtype,
		Pickup:         locationDTO{Lat: b.Pickup.Lat, Lng: b.Pickup.Lng},
		Drop:           locationDTO{Lat: b.Drop.Lat, Lng: b.Drop.Lng},
		DistanceKm:     b.DistanceKm,
		FarePerTruck:   b.FarePerTruck,
		TrucksNeeded:   b.TrucksNeeded,
		TrucksFilled:   b.TrucksFilled,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt,
		ExpiresAt:      b.ExpiresAt,
	}
}

func broadcastsToResponse(list []domain.Broadcast) []broadcastDTO {
	out := make([]broadcastDTO, 0, len(list))
	for _, b := range list {
		out = append(out, broadcastToResponse(b))
	}
	return out
}

func assignmentsToResponse(list []domain.Assignment) []assignmentDTO {
	out := make([]assignmentDTO, 0, len(list))
	for _, a := range list {
		out = append(out, assignmentDTO{
			ID:            a.ID,
			TransporterID: a.TransporterID,
			VehicleID:     a.VehicleID,
			DriverID:      a.DriverID,
			Status:        string(a.Status),
			CreatedAt:     a.CreatedAt,
		})
	}
	return out
}

func acceptToResponse(res domain.AcceptResult) acceptResponse {
	out := acceptResponse{
		Won:          res.Won,
		AssignmentID: res.AssignmentID,
		Status:       string(res.Status),
		TrucksFilled: res.TrucksFilled,
		TrucksNeeded: res.TrucksNeeded,
	}
	if !res.Won {
		out.Reason = string(res.Reason)
		out.Message = res.Reason.Message()
	}
	return out
}
