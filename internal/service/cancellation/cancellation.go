// Package cancellation implements idempotent, race-safe customer cancellation. A cancel
// that wins the conditional update reverts every live assignment, including one an accept
// committed moments earlier.
package cancellation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/ports/broadcasttx"
	"truck-dispatch/internal/retry"
)

// Config holds the cancel timings.
type Config struct {
	Retry            retry.Config
	OperationTimeout time.Duration
}

// Service - cancellation coordinator.
type Service struct {
	runner    broadcasttx.Runner
	publisher publisher
	cleaner   cleaner
	outcomes  outcomes
	policy    retry.Policy
	timeout   time.Duration
	logger    logx.Logger
	now       func() time.Time
}

// NewService - creates a new cancellation Service. retries and outcomes may be nil.
func NewService(
	runner broadcasttx.Runner,
	pub publisher,
	cl cleaner,
	out outcomes,
	retries retry.Counter,
	cfg Config,
	logger logx.Logger,
) *Service {
	if logger == nil {
		logger = logx.Nop()
	}
	if out == nil {
		out = nopOutcomes{}
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	return &Service{
		runner:    runner,
		publisher: pub,
		cleaner:   cl,
		outcomes:  out,
		policy: retry.Policy{
			Name:      "cancel",
			Config:    cfg.Retry,
			Retryable: broadcasttx.Retryable,
			Logger:    logger,
			Retries:   retries,
		},
		timeout: cfg.OperationTimeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Cancel moves the customer's broadcast to CANCELLED. Repeated calls succeed with
// AlreadyCancelled; a broadcast that ended otherwise fails with CANNOT_CANCEL.
//
// Cancelling revokes every live assignment of the broadcast, not only one that raced the
// cancel: trucks accepted earlier on a PARTIALLY_FILLED broadcast are released as well and
// their transporters and drivers are told so.
func (s *Service) Cancel(ctx context.Context, broadcastID, customerID string) (domain.CancelResult, error) {
	broadcastID = strings.TrimSpace(broadcastID)
	customerID = strings.TrimSpace(customerID)
	if broadcastID == "" || customerID == "" {
		return domain.CancelResult{}, apperr.ErrInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		res    domain.CancelResult
		before domain.Broadcast
		won    bool
	)
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		res, won = domain.CancelResult{}, false
		return s.runner.WithTx(ctx, func(tx broadcasttx.Repository) error {
			b, err := tx.GetBroadcast(ctx, broadcastID)
			if err != nil {
				return err
			}
			if b == nil || b.CustomerID != customerID {
				return apperr.ErrNotFound
			}

			now := s.now()
			ok, err := tx.UpdateStatus(ctx, b.ID, domain.Sources(domain.TriggerCancel), domain.StatusCancelled, now)
			if err != nil {
				return err
			}
			if !ok {
				cur, err := tx.GetBroadcast(ctx, b.ID)
				if err != nil {
					return err
				}
				if cur != nil && cur.Status == domain.StatusCancelled {
					res.AlreadyCancelled = true
					return nil
				}
				status := b.Status
				if cur != nil {
					status = cur.Status
				}
				return apperr.Wrap(apperr.CodeCannotCancel,
					fmt.Sprintf("request is already %s", strings.ToLower(string(status))),
					fmt.Errorf("broadcast %s is %s", b.ID, status))
			}

			reverted, err := tx.CancelLiveAssignments(ctx, b.ID, now)
			if err != nil {
				return err
			}
			if err := tx.InsertTransition(ctx, domain.Transition{
				BroadcastID: b.ID,
				From:        b.Status,
				To:          domain.StatusCancelled,
				Trigger:     domain.TriggerCancel.String(),
				ChangedAt:   now,
			}); err != nil {
				return err
			}

			before = *b
			res.Reverted = reverted
			won = true
			return nil
		})
	})
	if err != nil {
		s.outcomes.Observe("cancel", outcomeOf(err))
		return domain.CancelResult{}, err
	}
	if !won {
		s.outcomes.Observe("cancel", "already_cancelled")
		return res, nil
	}

	s.outcomes.Observe("cancel", "won")
	s.afterCancel(ctx, before, res.Reverted)
	return res, nil
}

func (s *Service) afterCancel(ctx context.Context, b domain.Broadcast, reverted []domain.Assignment) {
	s.logger.Info("broadcast cancelled",
		logx.String("broadcast_id", b.ID),
		logx.String("customer_id", b.CustomerID),
		logx.String("from", string(b.Status)),
		logx.Int("reverted", len(reverted)),
	)

	b.Status = domain.StatusCancelled
	notified := s.cleaner.Terminal(ctx, b)

	rooms := []string{domain.CustomerRoom(b.CustomerID)}
	for _, id := range notified {
		rooms = append(rooms, domain.TransporterRoom(id))
	}
	for _, a := range reverted {
		rooms = append(rooms, domain.TransporterRoom(a.TransporterID))
	}
	s.publisher.Publish(ctx, domain.Event{
		Type:        domain.EventBroadcastCancelled,
		BroadcastID: b.ID,
		CustomerID:  b.CustomerID,
		Status:      domain.StatusCancelled,
		Message:     "request cancelled",
	}, rooms...)

	for _, a := range reverted {
		s.publisher.Publish(ctx, domain.Event{
			Type:        domain.EventTripCancelled,
			BroadcastID: b.ID,
			Status:      domain.StatusCancelled,
			Message:     "Trip cancelled",
			Data: map[string]string{
				"assignment_id": a.ID,
				"vehicle_id":    a.VehicleID,
			},
		}, domain.DriverRoom(a.DriverID), domain.TransporterRoom(a.TransporterID))
	}
}

func outcomeOf(err error) string {
	if code := apperr.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

type nopOutcomes struct{}

func (nopOutcomes) Observe(string, string) {}
