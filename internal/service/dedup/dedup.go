// Package dedup collapses retried or double-tapped create requests onto one broadcast.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
)

const coordPrecision = 4

// Fingerprint hashes the normalized create parameters. Coordinates are rounded so GPS
// jitter between two taps yields the same value.
func Fingerprint(req domain.CreateRequest) string {
	parts := []string{
		strings.TrimSpace(req.CustomerID),
		strings.ToLower(strings.TrimSpace(req.VehicleType)),
		strings.ToLower(strings.TrimSpace(req.VehicleSubtype)),
		strconv.Itoa(req.TrucksNeeded),
		coord(req.Pickup.Lat), coord(req.Pickup.Lng),
		coord(req.Drop.Lat), coord(req.Drop.Lng),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func coord(v float64) string {
	p := math.Pow(10, coordPrecision)
	r := math.Round(v*p) / p
	if r == 0 {
		r = 0 // normalizes -0
	}
	return strconv.FormatFloat(r, 'f', coordPrecision, 64)
}

// Deduplicator owns the IdempotencyMarker.
type Deduplicator struct {
	markers idempotencyStore
	store   broadcastReader
	ttl     time.Duration
	logger  logx.Logger
}

// New creates a Deduplicator; ttl is the broadcast timeout plus buffer.
func New(markers idempotencyStore, store broadcastReader, ttl time.Duration, logger logx.Logger) *Deduplicator {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Deduplicator{markers: markers, store: store, ttl: ttl, logger: logger}
}

// Claim reserves fingerprint for candidateID. It returns the live broadcast an earlier
// identical request created, or nil when the caller should create candidateID. Markers
// pointing at terminal or missing broadcasts are taken over. A marker store failure is
// logged and treated as a miss.
func (d *Deduplicator) Claim(ctx context.Context, fingerprint, candidateID string) (*domain.Broadcast, error) {
	owner, claimed, err := d.markers.ClaimIdempotency(ctx, fingerprint, candidateID, d.ttl)
	if err != nil {
		d.logger.Warn("idempotency marker unavailable",
			logx.String("fingerprint", fingerprint),
			logx.Err(err),
		)
		return nil, nil
	}
	if claimed {
		return nil, nil
	}

	b, err := d.store.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if b != nil && b.Status.Active() {
		return b, nil
	}

	replaced, err := d.markers.ReplaceIdempotency(ctx, fingerprint, owner, candidateID, d.ttl)
	if err != nil || !replaced {
		d.logger.Warn("stale idempotency marker not replaced",
			logx.String("fingerprint", fingerprint),
			logx.String("stale_id", owner),
			logx.Bool("replaced", replaced),
			logx.Err(err),
		)
	}
	return nil, nil
}

// Forget drops the marker if it still points to broadcastID. Best effort.
func (d *Deduplicator) Forget(ctx context.Context, fingerprint, broadcastID string) {
	if fingerprint == "" {
		return
	}
	if _, err := d.markers.ClearIdempotency(ctx, fingerprint, broadcastID); err != nil {
		d.logger.Warn("idempotency marker not cleared",
			logx.String("fingerprint", fingerprint),
			logx.String("broadcast_id", broadcastID),
			logx.Err(err),
		)
	}
}
