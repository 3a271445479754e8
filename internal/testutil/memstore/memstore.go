// Package memstore is an in-memory broadcast store for service tests. Transactions are
// executed one at a time and rolled back by restoring a snapshot, which is a valid
// serializable schedule.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/ports/broadcasttx"
)

type state struct {
	broadcasts  map[string]domain.Broadcast
	assignments []domain.Assignment
	transitions []domain.Transition
}

func (s state) clone() state {
	out := state{
		broadcasts:  make(map[string]domain.Broadcast, len(s.broadcasts)),
		assignments: append([]domain.Assignment(nil), s.assignments...),
		transitions: append([]domain.Transition(nil), s.transitions...),
	}
	for k, v := range s.broadcasts {
		out.broadcasts[k] = v
	}
	return out
}

// Store is safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	st          state
	failCommits int
	commits     int
	onCommit    func()
}

// New returns an empty store.
func New() *Store {
	return &Store{st: state{broadcasts: map[string]domain.Broadcast{}}}
}

// FailCommits makes the next n transactions abort with a serialization conflict.
func (s *Store) FailCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

// OnCommit registers a hook run after each successful commit, outside the store lock.
func (s *Store) OnCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = fn
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Put stores b directly, bypassing constraints.
func (s *Store) Put(b domain.Broadcast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.broadcasts[b.ID] = b
}

// WithTx implements broadcasttx.Runner.
func (s *Store) WithTx(ctx context.Context, fn func(tx broadcasttx.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	snapshot := s.st.clone()
	err := fn(&tx{s: s})
	if err == nil && s.failCommits > 0 {
		s.failCommits--
		err = apperr.Wrap(apperr.CodeSerializationConflict, "please try again", nil)
	}
	if err != nil {
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	s.commits++
	hook := s.onCommit
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// Get returns a broadcast by id, or nil.
func (s *Store) Get(_ context.Context, id string) (*domain.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.broadcasts[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// ActiveForCustomer returns the customer's non-terminal broadcast, if any.
func (s *Store) ActiveForCustomer(_ context.Context, customerID string) (*domain.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.st.activeFor(customerID); b != nil {
		return b, nil
	}
	return nil, nil
}

// ListByIDs returns the broadcasts found among ids.
func (s *Store) ListByIDs(_ context.Context, ids []string) ([]domain.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Broadcast
	for _, id := range ids {
		if b, ok := s.st.broadcasts[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListOverdue returns non-terminal broadcasts whose deadline passed.
func (s *Store) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Broadcast
	for _, b := range s.st.broadcasts {
		if b.Status.Active() && !b.ExpiresAt.After(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Assignments returns every assignment of the broadcast.
func (s *Store) Assignments(_ context.Context, broadcastID string) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.assignmentsOf(broadcastID), nil
}

// Transitions returns the audit trail of the broadcast.
func (s *Store) Transitions(_ context.Context, broadcastID string) ([]domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transition
	for _, t := range s.st.transitions {
		if t.BroadcastID == broadcastID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (st *state) activeFor(customerID string) *domain.Broadcast {
	for _, b := range st.broadcasts {
		if b.CustomerID == customerID && b.Status.Active() {
			b := b
			return &b
		}
	}
	return nil
}

func (st *state) assignmentsOf(broadcastID string) []domain.Assignment {
	var out []domain.Assignment
	for _, a := range st.assignments {
		if a.BroadcastID == broadcastID {
			out = append(out, a)
		}
	}
	return out
}

// tx is only used while Store.mu is held.
type tx struct {
	s *Store
}

func (t *tx) GetBroadcast(_ context.Context, id string) (*domain.Broadcast, error) {
	b, ok := t.s.st.broadcasts[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *tx) InsertBroadcast(_ context.Context, b *domain.Broadcast) error {
	if b.Status.Active() && t.s.st.activeFor(b.CustomerID) != nil {
		return broadcasttx.ErrCustomerActive
	}
	t.s.st.broadcasts[b.ID] = *b
	return nil
}

func (t *tx) ApplyAccept(_ context.Context, id string, expectFilled int, next domain.BroadcastStatus, at time.Time) (bool, error) {
	b, ok := t.s.st.broadcasts[id]
	if !ok || b.TrucksFilled != expectFilled || b.TrucksFilled >= b.TrucksNeeded || !in(b.Status, domain.Sources(domain.TriggerAccept)) {
		return false, nil
	}
	b.TrucksFilled++
	b.Status = next
	b.StateChangedAt = at
	t.s.st.broadcasts[id] = b
	return true, nil
}

func (t *tx) UpdateStatus(_ context.Context, id string, from []domain.BroadcastStatus, to domain.BroadcastStatus, at time.Time) (bool, error) {
	b, ok := t.s.st.broadcasts[id]
	if !ok || !in(b.Status, from) {
		return false, nil
	}
	b.Status = to
	b.StateChangedAt = at
	t.s.st.broadcasts[id] = b
	return true, nil
}

func (t *tx) InsertAssignment(_ context.Context, a *domain.Assignment) error {
	for _, cur := range t.s.st.assignments {
		if cur.BroadcastID == a.BroadcastID && cur.VehicleID == a.VehicleID && cur.Live() {
			return broadcasttx.ErrVehicleAssigned
		}
	}
	t.s.st.assignments = append(t.s.st.assignments, *a)
	return nil
}

func (t *tx) ListAssignments(_ context.Context, broadcastID string) ([]domain.Assignment, error) {
	return t.s.st.assignmentsOf(broadcastID), nil
}

func (t *tx) CancelLiveAssignments(_ context.Context, broadcastID string, _ time.Time) ([]domain.Assignment, error) {
	var out []domain.Assignment
	for i, a := range t.s.st.assignments {
		if a.BroadcastID == broadcastID && a.Live() {
			a.Status = domain.AssignmentCancelled
			t.s.st.assignments[i] = a
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *tx) InsertTransition(_ context.Context, tr domain.Transition) error {
	t.s.st.transitions = append(t.s.st.transitions, tr)
	return nil
}

func in(s domain.BroadcastStatus, set []domain.BroadcastStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

var _ broadcasttx.Runner = (*Store)(nil)
