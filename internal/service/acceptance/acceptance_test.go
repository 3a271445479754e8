package acceptance_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/retry"
	"truck-dispatch/internal/service/acceptance"
	testlog "truck-dispatch/internal/testutil"
	"truck-dispatch/internal/testutil/eventrec"
	"truck-dispatch/internal/testutil/memstore"
)

type stubCleaner struct {
	mu       sync.Mutex
	cleaned  []string
	notified []string
}

func (c *stubCleaner) Terminal(_ context.Context, b domain.Broadcast) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleaned = append(c.cleaned, b.ID)
	return c.notified
}

type stubAudience struct{ ids []string }

func (a stubAudience) Notified(context.Context, string) ([]string, error) { return a.ids, nil }

type counterStub struct{ n atomic.Int64 }

func (c *counterStub) Inc() { c.n.Add(1) }

type fixture struct {
	svc     *acceptance.Service
	store   *memstore.Store
	events  *eventrec.Recorder
	cleaner *stubCleaner
	retries *counterStub
	rec     *testlog.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		events:  eventrec.New(),
		cleaner: &stubCleaner{notified: []string{"t1", "t2", "t3"}},
		retries: &counterStub{},
		rec:     testlog.New(),
	}
	f.svc = acceptance.NewService(f.store, f.events, f.cleaner, stubAudience{ids: []string{"t1", "t2"}}, nil, f.retries,
		acceptance.Config{Retry: retry.Config{MaxAttempts: 3}, OperationTimeout: time.Second}, f.rec.Logger())
	return f
}

func seed(store *memstore.Store, id string, needed int, status domain.BroadcastStatus) {
	now := time.Now().UTC()
	store.Put(domain.Broadcast{
		ID:             id,
		CustomerID:     "c-" + id,
		TrucksNeeded:   needed,
		Status:         status,
		Fingerprint:    "fp-" + id,
		CreatedAt:      now,
		StateChangedAt: now,
		ExpiresAt:      now.Add(2 * time.Minute),
	})
}

func req(broadcastID, transporter string) domain.AcceptRequest {
	return domain.AcceptRequest{
		BroadcastID:   broadcastID,
		TransporterID: transporter,
		VehicleID:     "v-" + transporter,
		DriverID:      "d-" + transporter,
	}
}

func TestAccept_SingleTruck_WinnerThenAlreadyTaken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	seed(f.store, "b1", 1, domain.StatusAwaitingResponses)

	first, err := f.svc.Accept(ctx, req("b1", "t1"))
	require.NoError(t, err)
	require.True(t, first.Won)
	require.NotEmpty(t, first.AssignmentID)
	require.Equal(t, domain.StatusFullyFilled, first.Status)

	second, err := f.svc.Accept(ctx, req("b1", "t2"))
	require.NoError(t, err)
	require.False(t, second.Won)
	require.Equal(t, domain.ReasonAlreadyTaken, second.Reason)

	b, err := f.store.Get(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 1, b.TrucksFilled)
	require.Equal(t, domain.StatusFullyFilled, b.Status)

	require.Equal(t, []string{"b1"}, f.cleaner.cleaned)
	filled := f.events.OfType(domain.EventBroadcastFilled)
	require.Len(t, filled, 1)
	require.Equal(t, []string{"customer:c-b1", "transporter:t1", "transporter:t2", "transporter:t3"}, filled[0].Rooms)
	require.Len(t, f.events.OfType(domain.EventAcceptConfirmed), 1)
	require.Len(t, f.events.OfType(domain.EventAcceptRejected), 1)

	trail, err := f.store.Transitions(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, domain.StatusFullyFilled, trail[0].To)
}

func TestAccept_ConcurrentExactlyOneWinnerPerSlot(t *testing.T) {
	t.Parallel()

	for _, needed := range []int{1, 3} {
		needed := needed
		t.Run(fmt.Sprintf("needed=%d", needed), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			seed(f.store, "b1", needed, domain.StatusAwaitingResponses)

			const contenders = 20
			var (
				wg   sync.WaitGroup
				won  atomic.Int32
				lost atomic.Int32
			)
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := f.svc.Accept(context.Background(), req("b1", fmt.Sprintf("t%d", i)))
					if !assert.NoError(t, err) {
						return
					}
					if res.Won {
						won.Add(1)
						return
					}
					assert.Equal(t, domain.ReasonAlreadyTaken, res.Reason)
					lost.Add(1)
				}(i)
			}
			wg.Wait()

			require.EqualValues(t, needed, won.Load())
			require.EqualValues(t, contenders-needed, lost.Load())

			b, err := f.store.Get(context.Background(), "b1")
			require.NoError(t, err)
			require.Equal(t, needed, b.TrucksFilled)
			require.Equal(t, domain.StatusFullyFilled, b.Status)

			list, err := f.store.Assignments(context.Background(), "b1")
			require.NoError(t, err)
			require.Len(t, list, needed)
		})
	}
}

func TestAccept_MultiTruckPartialThenFull(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	seed(f.store, "b1", 2, domain.StatusBroadcasting)

	first, err := f.svc.Accept(ctx, req("b1", "t1"))
	require.NoError(t, err)
	require.True(t, first.Won)
	require.Equal(t, domain.StatusPartiallyFilled, first.Status)
	require.Empty(t, f.cleaner.cleaned)

	status := f.events.OfType(domain.EventBroadcastStatus)
	require.Len(t, status, 1)
	require.Equal(t, "1", status[0].Event.Data["trucks_filled"])

	second, err := f.svc.Accept(ctx, req("b1", "t2"))
	require.NoError(t, err)
	require.True(t, second.Won)
	require.Equal(t, domain.StatusFullyFilled, second.Status)
	require.Equal(t, 2, second.TrucksFilled)
	require.Equal(t, []string{"b1"}, f.cleaner.cleaned)
}

func TestAccept_Ineligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status domain.BroadcastStatus
		expire bool
		want   domain.RejectReason
	}{
		{"cancelled", domain.StatusCancelled, false, domain.ReasonCancelled},
		{"expired status", domain.StatusExpired, false, domain.ReasonExpired},
		{"deadline passed", domain.StatusAwaitingResponses, true, domain.ReasonExpired},
		{"closed", domain.StatusClosed, false, domain.ReasonAlreadyTaken},
		{"not yet broadcast", domain.StatusCreated, false, domain.ReasonAlreadyTaken},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			seed(f.store, "b1", 1, tt.status)
			if tt.expire {
				b, _ := f.store.Get(context.Background(), "b1")
				b.ExpiresAt = time.Now().Add(-time.Second)
				f.store.Put(*b)
			}

			res, err := f.svc.Accept(context.Background(), req("b1", "t1"))
			require.NoError(t, err)
			require.False(t, res.Won)
			require.Equal(t, tt.want, res.Reason)

			list, err := f.store.Assignments(context.Background(), "b1")
			require.NoError(t, err)
			require.Empty(t, list)
		})
	}
}

func TestAccept_SameVehicleTwiceRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	seed(f.store, "b1", 3, domain.StatusAwaitingResponses)

	first, err := f.svc.Accept(ctx, req("b1", "t1"))
	require.NoError(t, err)
	require.True(t, first.Won)

	again, err := f.svc.Accept(ctx, req("b1", "t1"))
	require.NoError(t, err)
	require.False(t, again.Won)
	require.Equal(t, domain.ReasonVehicleAssigned, again.Reason)

	b, err := f.store.Get(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 1, b.TrucksFilled, "the increment must roll back with the assignment")
}

func TestAccept_RetriesSerializationConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seed(f.store, "b1", 1, domain.StatusAwaitingResponses)
	f.store.FailCommits(2)

	res, err := f.svc.Accept(context.Background(), req("b1", "t1"))
	require.NoError(t, err)
	require.True(t, res.Won)
	require.EqualValues(t, 2, f.retries.n.Load())

	list, err := f.store.Assignments(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAccept_ConflictExhaustedIsRetryable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seed(f.store, "b1", 1, domain.StatusAwaitingResponses)
	f.store.FailCommits(3)

	_, err := f.svc.Accept(context.Background(), req("b1", "t1"))
	require.ErrorIs(t, err, apperr.SerializationConflict)
	require.ErrorIs(t, err, retry.ErrExhausted)
	require.True(t, apperr.IsRetryable(err))

	b, _ := f.store.Get(context.Background(), "b1")
	require.Equal(t, 0, b.TrucksFilled)
}

func TestAccept_NotFoundAndInvalid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Accept(context.Background(), req("missing", "t1"))
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Accept(context.Background(), domain.AcceptRequest{BroadcastID: "b1", TransporterID: " "})
	require.ErrorIs(t, err, apperr.ErrInvalid)
}
