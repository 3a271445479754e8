package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/ports/broadcasttx"
)

// Re-exported port errors.
var (
	ErrCustomerActive  = broadcasttx.ErrCustomerActive
	ErrVehicleAssigned = broadcasttx.ErrVehicleAssigned
)

const (
	constraintCustomerActive = "ux_broadcasts_customer_active"
	constraintLiveVehicle    = "ux_assignments_live_vehicle"
)

// isDuplicateOn - duplicate key violation on the named constraint.
func isDuplicateOn(err error, constraint string) bool {
	var pgerr *pgconn.PgError
	return errors.As(err, &pgerr) && pgerr.Code == "23505" && pgerr.ConstraintName == constraint
}

// IsNotFound - signals that the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsSerializationFailure - the store aborted the transaction because of a concurrent
// conflicting transaction (serialization_failure or deadlock_detected). Safe to retry.
func IsSerializationFailure(err error) bool {
	var pgerr *pgconn.PgError
	if !errors.As(err, &pgerr) {
		return false
	}
	return pgerr.Code == "40001" || pgerr.Code == "40P01"
}

// classifyTx maps store-level conflicts onto the retryable taxonomy error.
func classifyTx(err error) error {
	if err == nil || !IsSerializationFailure(err) {
		return err
	}
	return apperr.Wrap(apperr.CodeSerializationConflict, "please try again", err)
}
