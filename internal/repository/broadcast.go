package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/ports/broadcasttx"
)

const broadcastColumns = `id, customer_id, vehicle_type, vehicle_subtype, pickup_lat, pickup_lng,
	drop_lat, drop_lng, distance_km, fare_per_truck, trucks_needed, trucks_filled, status,
	fingerprint, created_at, state_changed_at, expires_at`

const assignmentColumns = `id, broadcast_id, transporter_id, vehicle_id, driver_id, status, created_at`

// BroadcastRepo is the durable broadcast store.
type BroadcastRepo struct {
	db *pgxpool.Pool
}

// NewBroadcastRepo creates a new BroadcastRepo.
func NewBroadcastRepo(db *pgxpool.Pool) *BroadcastRepo {
	return &BroadcastRepo{db: db}
}

// WithTx opens a SERIALIZABLE transaction and executes fn within it. Serialization
// failures come back as apperr.SerializationConflict.
func (r *BroadcastRepo) WithTx(ctx context.Context, fn func(tx broadcasttx.Repository) error) error {
	return classifyTx(r.withTx(ctx, fn))
}

func (r *BroadcastRepo) withTx(ctx context.Context, fn func(tx broadcasttx.Repository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&TxRepo{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get returns a broadcast by id, or nil when it does not exist.
func (r *BroadcastRepo) Get(ctx context.Context, id string) (*domain.Broadcast, error) {
	b, err := scanBroadcast(r.db.QueryRow(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get broadcast %s: %w", id, err)
	}
	return b, nil
}

// ActiveForCustomer returns the customer's non-terminal broadcast, if any.
func (r *BroadcastRepo) ActiveForCustomer(ctx context.Context, customerID string) (*domain.Broadcast, error) {
	b, err := scanBroadcast(r.db.QueryRow(ctx, `
		SELECT `+broadcastColumns+`
		FROM broadcasts
		WHERE customer_id = $1 AND status = ANY($2)
		LIMIT 1
	`, customerID, activeStatuses()))
	if err != nil {
		return nil, fmt.Errorf("active broadcast for %s: %w", customerID, err)
	}
	return b, nil
}

// ListByIDs returns the broadcasts that exist among ids, in no particular order.
func (r *BroadcastRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.Broadcast, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	return collectBroadcasts(rows)
}

// ListOverdue returns non-terminal broadcasts whose deadline passed before now.
func (r *BroadcastRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Broadcast, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+broadcastColumns+`
		FROM broadcasts
		WHERE status = ANY($1) AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3
	`, activeStatuses(), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue broadcasts: %w", err)
	}
	return collectBroadcasts(rows)
}

// Assignments returns all assignments of a broadcast, oldest first.
func (r *BroadcastRepo) Assignments(ctx context.Context, broadcastID string) ([]domain.Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments WHERE broadcast_id = $1 ORDER BY created_at, id
	`, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("list assignments %s: %w", broadcastID, err)
	}
	return collectAssignments(rows)
}

// Transitions returns the audit trail of a broadcast.
func (r *BroadcastRepo) Transitions(ctx context.Context, broadcastID string) ([]domain.Transition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT broadcast_id, from_status, to_status, trigger_name, changed_at
		FROM broadcast_transitions
		WHERE broadcast_id = $1
		ORDER BY id
	`, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("list transitions %s: %w", broadcastID, err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(&t.BroadcastID, &t.From, &t.To, &t.Trigger, &t.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TxRepo represents transaction repository.
type TxRepo struct {
	tx pgx.Tx
}

// GetBroadcast reads the broadcast inside the transaction.
func (r *TxRepo) GetBroadcast(ctx context.Context, id string) (*domain.Broadcast, error) {
	b, err := scanBroadcast(r.tx.QueryRow(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get broadcast %s: %w", id, err)
	}
	return b, nil
}

// InsertBroadcast inserts a new broadcast. A second live broadcast for the same customer
// fails with ErrCustomerActive.
func (r *TxRepo) InsertBroadcast(ctx context.Context, b *domain.Broadcast) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO broadcasts (`+broadcastColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, b.ID, b.CustomerID, b.VehicleType, b.VehicleSubtype, b.Pickup.Lat, b.Pickup.Lng,
		b.Drop.Lat, b.Drop.Lng, b.DistanceKm, b.FarePerTruck, b.TrucksNeeded, b.TrucksFilled,
		string(b.Status), b.Fingerprint, b.CreatedAt, b.StateChangedAt, b.ExpiresAt)
	if err != nil {
		if isDuplicateOn(err, constraintCustomerActive) {
			return ErrCustomerActive
		}
		return fmt.Errorf("insert broadcast: %w", err)
	}
	return nil
}

// ApplyAccept - conditional slot increment.
func (r *TxRepo) ApplyAccept(ctx context.Context, id string, expectFilled int, next domain.BroadcastStatus, at time.Time) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
		UPDATE broadcasts
		SET trucks_filled = trucks_filled + 1,
		    status = $3,
		    state_changed_at = $4
		WHERE id = $1
		  AND trucks_filled = $2
		  AND trucks_filled < trucks_needed
		  AND status = ANY($5)
	`, id, expectFilled, string(next), at, domain.StatusStrings(domain.Sources(domain.TriggerAccept)))
	if err != nil {
		return false, fmt.Errorf("apply accept %s: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// UpdateStatus - conditional status transition.
func (r *TxRepo) UpdateStatus(ctx context.Context, id string, from []domain.BroadcastStatus, to domain.BroadcastStatus, at time.Time) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
		UPDATE broadcasts
		SET status = $3, state_changed_at = $4
		WHERE id = $1 AND status = ANY($2)
	`, id, domain.StatusStrings(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("update status %s -> %s: %w", id, to, err)
	}
	return ct.RowsAffected() == 1, nil
}

// InsertAssignment - insert a new assignment.
func (r *TxRepo) InsertAssignment(ctx context.Context, a *domain.Assignment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO assignments (id, broadcast_id, transporter_id, vehicle_id, driver_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, a.ID, a.BroadcastID, a.TransporterID, a.VehicleID, a.DriverID, string(a.Status), a.CreatedAt)
	if err != nil {
		if isDuplicateOn(err, constraintLiveVehicle) {
			return ErrVehicleAssigned
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// ListAssignments - assignments of a broadcast inside the transaction.
func (r *TxRepo) ListAssignments(ctx context.Context, broadcastID string) ([]domain.Assignment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments WHERE broadcast_id = $1 ORDER BY created_at, id
	`, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("list assignments %s: %w", broadcastID, err)
	}
	return collectAssignments(rows)
}

// CancelLiveAssignments marks every live assignment CANCELLED and returns them.
func (r *TxRepo) CancelLiveAssignments(ctx context.Context, broadcastID string, at time.Time) ([]domain.Assignment, error) {
	rows, err := r.tx.Query(ctx, `
		UPDATE assignments
		SET status = $2, updated_at = $3
		WHERE broadcast_id = $1 AND status <> $2
		RETURNING `+assignmentColumns,
		broadcastID, string(domain.AssignmentCancelled), at)
	if err != nil {
		return nil, fmt.Errorf("cancel assignments %s: %w", broadcastID, err)
	}
	return collectAssignments(rows)
}

// InsertTransition appends to the audit trail.
func (r *TxRepo) InsertTransition(ctx context.Context, t domain.Transition) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO broadcast_transitions (broadcast_id, from_status, to_status, trigger_name, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.BroadcastID, string(t.From), string(t.To), t.Trigger, t.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert transition %s: %w", t.BroadcastID, err)
	}
	return nil
}

var _ broadcasttx.Repository = (*TxRepo)(nil)

func activeStatuses() []string {
	return domain.StatusStrings(domain.Sources(domain.TriggerCancel))
}

func scanBroadcast(row pgx.Row) (*domain.Broadcast, error) {
	var b domain.Broadcast
	err := row.Scan(&b.ID, &b.CustomerID, &b.VehicleType, &b.VehicleSubtype, &b.Pickup.Lat, &b.Pickup.Lng,
		&b.Drop.Lat, &b.Drop.Lng, &b.DistanceKm, &b.FarePerTruck, &b.TrucksNeeded, &b.TrucksFilled,
		&b.Status, &b.Fingerprint, &b.CreatedAt, &b.StateChangedAt, &b.ExpiresAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func collectBroadcasts(rows pgx.Rows) ([]domain.Broadcast, error) {
	defer rows.Close()
	var out []domain.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func collectAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	var out []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.BroadcastID, &a.TransporterID, &a.VehicleID, &a.DriverID, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
