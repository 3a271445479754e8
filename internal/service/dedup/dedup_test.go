package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/kvstore"
	"truck-dispatch/internal/service/dedup"
	testlog "truck-dispatch/internal/testutil"
	"truck-dispatch/internal/testutil/memstore"
	"truck-dispatch/internal/testutil/redistest"
)

func request() domain.CreateRequest {
	return domain.CreateRequest{
		CustomerID:     "c1",
		VehicleType:    "Open",
		VehicleSubtype: "17ft",
		Pickup:         domain.Location{Lat: 12.971598, Lng: 77.594566},
		Drop:           domain.Location{Lat: 13.035542, Lng: 77.597100},
		TrucksNeeded:   2,
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	base := dedup.Fingerprint(request())

	jitter := request()
	jitter.Pickup.Lat += 0.00001
	jitter.VehicleType = " open "
	require.Equal(t, base, dedup.Fingerprint(jitter), "sub-precision jitter and casing must not change the fingerprint")

	tests := []struct {
		name   string
		mutate func(*domain.CreateRequest)
	}{
		{"customer", func(r *domain.CreateRequest) { r.CustomerID = "c2" }},
		{"vehicle type", func(r *domain.CreateRequest) { r.VehicleType = "container" }},
		{"subtype", func(r *domain.CreateRequest) { r.VehicleSubtype = "20ft" }},
		{"trucks", func(r *domain.CreateRequest) { r.TrucksNeeded = 3 }},
		{"pickup", func(r *domain.CreateRequest) { r.Pickup.Lat += 0.001 }},
		{"drop", func(r *domain.CreateRequest) { r.Drop.Lng -= 0.001 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := request()
			tt.mutate(&r)
			require.NotEqual(t, base, dedup.Fingerprint(r))
		})
	}
}

func newDeduplicator(t *testing.T) (*dedup.Deduplicator, *memstore.Store, *kvstore.Markers, func()) {
	t.Helper()
	rdb, mr := redistest.New(t)
	store := memstore.New()
	markers := kvstore.NewMarkers(rdb)
	return dedup.New(markers, store, time.Minute, testlog.New().Logger()), store, markers, mr.Close
}

func TestClaim_FirstCallerWins(t *testing.T) {
	t.Parallel()

	d, store, _, _ := newDeduplicator(t)
	ctx := context.Background()

	got, err := d.Claim(ctx, "fp", "b1")
	require.NoError(t, err)
	require.Nil(t, got)

	store.Put(domain.Broadcast{ID: "b1", CustomerID: "c1", Status: domain.StatusAwaitingResponses})

	got, err = d.Claim(ctx, "fp", "b2")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "b1", got.ID)
}

func TestClaim_TerminalOwnerIsTakenOver(t *testing.T) {
	t.Parallel()

	d, store, markers, _ := newDeduplicator(t)
	ctx := context.Background()

	_, err := d.Claim(ctx, "fp", "b1")
	require.NoError(t, err)
	store.Put(domain.Broadcast{ID: "b1", CustomerID: "c1", Status: domain.StatusExpired})

	got, err := d.Claim(ctx, "fp", "b2")
	require.NoError(t, err)
	require.Nil(t, got)

	owner, ok, err := markers.Idempotency(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b2", owner)
}

func TestClaim_MissingOwnerIsTakenOver(t *testing.T) {
	t.Parallel()

	d, _, markers, _ := newDeduplicator(t)
	ctx := context.Background()

	_, err := d.Claim(ctx, "fp", "never-created")
	require.NoError(t, err)

	got, err := d.Claim(ctx, "fp", "b2")
	require.NoError(t, err)
	require.Nil(t, got)

	owner, _, err := markers.Idempotency(ctx, "fp")
	require.NoError(t, err)
	require.Equal(t, "b2", owner)
}

func TestForget_CompareAndDelete(t *testing.T) {
	t.Parallel()

	d, _, markers, _ := newDeduplicator(t)
	ctx := context.Background()

	_, err := d.Claim(ctx, "fp", "b1")
	require.NoError(t, err)

	d.Forget(ctx, "fp", "other")
	_, ok, err := markers.Idempotency(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)

	d.Forget(ctx, "fp", "b1")
	_, ok, err = markers.Idempotency(ctx, "fp")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClaim_MarkerStoreDownIsAMiss(t *testing.T) {
	t.Parallel()

	d, _, _, stop := newDeduplicator(t)
	stop()

	got, err := d.Claim(context.Background(), "fp", "b1")
	require.NoError(t, err)
	require.Nil(t, got)
}
