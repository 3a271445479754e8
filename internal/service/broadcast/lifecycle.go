package broadcast

import (
	"context"
	"errors"
	"fmt"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/ports/broadcasttx"
	"truck-dispatch/internal/service/fanout"
)

// advance applies trigger t to the broadcast as one conditional update plus its audit row.
// moved is false when the broadcast is not in a source state for t; the returned
// broadcast is then the current row. A non-empty customerID must own the broadcast.
func (s *Service) advance(ctx context.Context, id, customerID string, t domain.Trigger) (b domain.Broadcast, moved bool, err error) {
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		moved = false
		return s.d.Runner.WithTx(ctx, func(tx broadcasttx.Repository) error {
			cur, err := tx.GetBroadcast(ctx, id)
			if err != nil {
				return err
			}
			if cur == nil || (customerID != "" && cur.CustomerID != customerID) {
				return apperr.ErrNotFound
			}
			b = *cur

			next, err := domain.Next(cur.Status, t, cur.TrucksFilled, cur.TrucksNeeded)
			if errors.Is(err, domain.ErrInvalidTransition) {
				return nil
			}
			if err != nil {
				return err
			}

			now := s.now()
			ok, err := tx.UpdateStatus(ctx, id, []domain.BroadcastStatus{cur.Status}, next, now)
			if err != nil || !ok {
				return err
			}
			if err := tx.InsertTransition(ctx, domain.Transition{
				BroadcastID: id,
				From:        cur.Status,
				To:          next,
				Trigger:     t.String(),
				ChangedAt:   now,
			}); err != nil {
				return err
			}
			b.Status = next
			b.StateChangedAt = now
			moved = true
			return nil
		})
	})
	return b, moved, err
}

// Expire moves a live broadcast to EXPIRED. It reports false when the broadcast is gone
// or already settled, so the timer can drop its entry. Only the open slots lapse: trucks
// already assigned on a PARTIALLY_FILLED broadcast keep their assignments.
func (s *Service) Expire(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, moved, err := s.advance(ctx, id, "", domain.TriggerExpire)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		s.d.Outcomes.Observe("expire", outcomeOf(err))
		return false, err
	}
	if !moved {
		s.d.Outcomes.Observe("expire", "noop")
		return false, nil
	}

	s.d.Outcomes.Observe("expire", "expired")
	s.logger.Info("broadcast expired",
		logx.String("broadcast_id", b.ID),
		logx.String("customer_id", b.CustomerID),
		logx.Int("trucks_filled", b.TrucksFilled),
		logx.Int("trucks_needed", b.TrucksNeeded),
	)
	notified := s.d.Cleaner.Terminal(ctx, b)
	s.d.Publisher.Publish(ctx, domain.Event{
		Type:        domain.EventBroadcastExpired,
		BroadcastID: b.ID,
		CustomerID:  b.CustomerID,
		Status:      b.Status,
		Message:     expiredMessage(b),
		Data:        map[string]string{"retry": "true"},
	}, append([]string{domain.CustomerRoom(b.CustomerID)}, fanout.TransporterRooms(notified)...)...)
	return true, nil
}

func expiredMessage(b domain.Broadcast) string {
	if b.TrucksFilled == 0 {
		return "No transporters found"
	}
	return fmt.Sprintf("request expired with %d of %d trucks", b.TrucksFilled, b.TrucksNeeded)
}

// Close settles a broadcast the customer is done with. Closing a closed broadcast is a no-op.
func (s *Service) Close(ctx context.Context, id, customerID string) (domain.Broadcast, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, moved, err := s.advance(ctx, id, customerID, domain.TriggerClose)
	if err != nil {
		s.d.Outcomes.Observe("close", outcomeOf(err))
		return domain.Broadcast{}, err
	}
	if !moved {
		if b.Status == domain.StatusClosed {
			s.d.Outcomes.Observe("close", "already_closed")
			return b, nil
		}
		s.d.Outcomes.Observe("close", "conflict")
		return domain.Broadcast{}, fmt.Errorf("%w: request is %s", apperr.ErrConflict, b.Status)
	}

	s.d.Outcomes.Observe("close", "closed")
	s.logger.Info("broadcast closed",
		logx.String("broadcast_id", b.ID),
		logx.String("customer_id", b.CustomerID),
	)
	notified := s.d.Cleaner.Terminal(ctx, b)
	s.d.Publisher.Publish(ctx, domain.Event{
		Type:        domain.EventBroadcastClosed,
		BroadcastID: b.ID,
		CustomerID:  b.CustomerID,
		Status:      b.Status,
	}, append([]string{domain.CustomerRoom(b.CustomerID)}, fanout.TransporterRooms(notified)...)...)
	return b, nil
}
