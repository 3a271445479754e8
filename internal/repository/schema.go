package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; the partial unique index is the store-level guarantee of one
// non-terminal broadcast per customer.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS broadcasts (
		id               TEXT PRIMARY KEY,
		customer_id      TEXT NOT NULL,
		vehicle_type     TEXT NOT NULL,
		vehicle_subtype  TEXT NOT NULL DEFAULT '',
		pickup_lat       DOUBLE PRECISION NOT NULL,
		pickup_lng       DOUBLE PRECISION NOT NULL,
		drop_lat         DOUBLE PRECISION NOT NULL,
		drop_lng         DOUBLE PRECISION NOT NULL,
		distance_km      DOUBLE PRECISION NOT NULL DEFAULT 0,
		fare_per_truck   BIGINT NOT NULL DEFAULT 0,
		trucks_needed    INT NOT NULL CHECK (trucks_needed > 0),
		trucks_filled    INT NOT NULL DEFAULT 0,
		status           TEXT NOT NULL,
		fingerprint      TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		state_changed_at TIMESTAMPTZ NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL,
		CONSTRAINT broadcasts_filled_range CHECK (trucks_filled >= 0 AND trucks_filled <= trucks_needed)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_broadcasts_customer_active ON broadcasts (customer_id)
		WHERE status IN ('CREATED', 'BROADCASTING', 'AWAITING_RESPONSES', 'PARTIALLY_FILLED')`,
	`CREATE INDEX IF NOT EXISTS ix_broadcasts_active_expiry ON broadcasts (expires_at)
		WHERE status IN ('CREATED', 'BROADCASTING', 'AWAITING_RESPONSES', 'PARTIALLY_FILLED')`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id             TEXT PRIMARY KEY,
		broadcast_id   TEXT NOT NULL REFERENCES broadcasts (id),
		transporter_id TEXT NOT NULL,
		vehicle_id     TEXT NOT NULL,
		driver_id      TEXT NOT NULL,
		status         TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_assignments_broadcast ON assignments (broadcast_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_assignments_live_vehicle ON assignments (broadcast_id, vehicle_id)
		WHERE status <> 'CANCELLED'`,
	`CREATE TABLE IF NOT EXISTS broadcast_transitions (
		id           BIGSERIAL PRIMARY KEY,
		broadcast_id TEXT NOT NULL REFERENCES broadcasts (id),
		from_status  TEXT NOT NULL,
		to_status    TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		changed_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_transitions_broadcast ON broadcast_transitions (broadcast_id, id)`,
	`CREATE TABLE IF NOT EXISTS transporter_vehicles (
		transporter_id  TEXT NOT NULL,
		vehicle_id      TEXT NOT NULL,
		vehicle_type    TEXT NOT NULL,
		vehicle_subtype TEXT NOT NULL DEFAULT '',
		available       BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (transporter_id, vehicle_id)
	)`,
}

// EnsureSchema creates the dispatch tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
