package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FleetRepo answers which transporters own an available vehicle of a given kind.
type FleetRepo struct {
	db *pgxpool.Pool
}

// NewFleetRepo creates a new FleetRepo.
func NewFleetRepo(db *pgxpool.Pool) *FleetRepo {
	return &FleetRepo{db: db}
}

// Candidates returns distinct transporter ids with an available vehicle matching the type.
// An empty subtype matches any subtype.
func (r *FleetRepo) Candidates(ctx context.Context, vehicleType, vehicleSubtype string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT transporter_id
		FROM transporter_vehicles
		WHERE available
		  AND vehicle_type = $1
		  AND ($2 = '' OR vehicle_subtype = $2)
		ORDER BY transporter_id
		LIMIT $3
	`, vehicleType, vehicleSubtype, limit)
	if err != nil {
		return nil, fmt.Errorf("fleet candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Register upserts a transporter vehicle.
func (r *FleetRepo) Register(ctx context.Context, transporterID, vehicleID, vehicleType, vehicleSubtype string, available bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transporter_vehicles (transporter_id, vehicle_id, vehicle_type, vehicle_subtype, available)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transporter_id, vehicle_id) DO UPDATE
		SET vehicle_type = EXCLUDED.vehicle_type,
		    vehicle_subtype = EXCLUDED.vehicle_subtype,
		    available = EXCLUDED.available
	`, transporterID, vehicleID, vehicleType, vehicleSubtype, available)
	if err != nil {
		return fmt.Errorf("register vehicle %s/%s: %w", transporterID, vehicleID, err)
	}
	return nil
}
