package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		from        BroadcastStatus
		trigger     Trigger
		filledAfter int
		needed      int
		want        BroadcastStatus
		wantErr     bool
	}{
		{name: "notify from created", from: StatusCreated, trigger: TriggerNotify, want: StatusBroadcasting},
		{name: "open window", from: StatusBroadcasting, trigger: TriggerOpenWindow, want: StatusAwaitingResponses},
		{name: "partial accept", from: StatusAwaitingResponses, trigger: TriggerAccept, filledAfter: 1, needed: 3, want: StatusPartiallyFilled},
		{name: "last slot fills", from: StatusPartiallyFilled, trigger: TriggerAccept, filledAfter: 3, needed: 3, want: StatusFullyFilled},
		{name: "single truck fills", from: StatusBroadcasting, trigger: TriggerAccept, filledAfter: 1, needed: 1, want: StatusFullyFilled},
		{name: "overfill rejected", from: StatusPartiallyFilled, trigger: TriggerAccept, filledAfter: 4, needed: 3, wantErr: true},
		{name: "accept from created rejected", from: StatusCreated, trigger: TriggerAccept, filledAfter: 1, needed: 1, wantErr: true},
		{name: "accept after fill rejected", from: StatusFullyFilled, trigger: TriggerAccept, filledAfter: 2, needed: 2, wantErr: true},
		{name: "cancel partial", from: StatusPartiallyFilled, trigger: TriggerCancel, want: StatusCancelled},
		{name: "cancel filled rejected", from: StatusFullyFilled, trigger: TriggerCancel, wantErr: true},
		{name: "expire created", from: StatusCreated, trigger: TriggerExpire, want: StatusExpired},
		{name: "expire terminal rejected", from: StatusCancelled, trigger: TriggerExpire, wantErr: true},
		{name: "close filled", from: StatusFullyFilled, trigger: TriggerClose, want: StatusClosed},
		{name: "close created rejected", from: StatusCreated, trigger: TriggerClose, wantErr: true},
		{name: "close closed rejected", from: StatusClosed, trigger: TriggerClose, wantErr: true},
		{name: "unknown trigger", from: StatusCreated, trigger: Trigger(99), wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Next(tt.from, tt.trigger, tt.filledAfter, tt.needed)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				require.Equal(t, tt.from, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatesAllowNoDispatchTrigger(t *testing.T) {
	t.Parallel()

	dispatch := []Trigger{TriggerNotify, TriggerOpenWindow, TriggerAccept, TriggerCancel, TriggerExpire}
	for _, s := range allStatuses {
		if !s.Terminal() {
			continue
		}
		for _, tr := range dispatch {
			assert.Falsef(t, s.Allows(tr), "%s must not allow %s", s, tr)
		}
	}
}

func TestStatus_ActiveAndTerminalPartition(t *testing.T) {
	t.Parallel()

	for _, s := range allStatuses {
		require.True(t, s.Valid())
		require.NotEqual(t, s.Active(), s.Terminal(), s)
	}
	require.False(t, BroadcastStatus("BOGUS").Valid())
	require.False(t, BroadcastStatus("BOGUS").Terminal())
	require.False(t, BroadcastStatus("BOGUS").Active())
}

func TestTrigger_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "open_window", TriggerOpenWindow.String())
	require.Equal(t, "trigger(42)", Trigger(42).String())
	require.Nil(t, Sources(Trigger(42)))
}

func TestStatusStrings(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"CREATED", "EXPIRED"}, StatusStrings([]BroadcastStatus{StatusCreated, StatusExpired}))
}

func TestBroadcast_Helpers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := Broadcast{TrucksNeeded: 3, TrucksFilled: 1, ExpiresAt: now}

	require.Equal(t, 2, b.SlotsLeft())
	require.True(t, b.Expired(now))
	require.False(t, b.Expired(now.Add(-time.Second)))

	b.TrucksFilled = 5
	require.Zero(t, b.SlotsLeft())
	require.False(t, (&Broadcast{}).Expired(now), "zero deadline never expires")
}

func TestLocation_Valid(t *testing.T) {
	t.Parallel()

	require.True(t, Location{Lat: 12.97, Lng: 77.59}.Valid())
	require.False(t, Location{Lat: 91, Lng: 0}.Valid())
	require.False(t, Location{Lat: 0, Lng: -181}.Valid())
}

func TestAssignment_Live(t *testing.T) {
	t.Parallel()

	require.True(t, Assignment{Status: AssignmentPending}.Live())
	require.True(t, Assignment{Status: AssignmentAccepted}.Live())
	require.False(t, Assignment{Status: AssignmentCancelled}.Live())
}

func TestRejectReason_Message(t *testing.T) {
	t.Parallel()

	require.Equal(t, "no longer available", ReasonAlreadyTaken.Message())
	require.Equal(t, "request expired", ReasonExpired.Message())
	require.Equal(t, "OTHER", RejectReason("OTHER").Message())
}

func TestRooms(t *testing.T) {
	t.Parallel()

	require.Equal(t, "customer:c1", CustomerRoom("c1"))
	require.Equal(t, "transporter:t1", TransporterRoom("t1"))
	require.Equal(t, "driver:d1", DriverRoom("d1"))
}
