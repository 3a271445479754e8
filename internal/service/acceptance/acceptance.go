// Package acceptance implements the exactly-one-winner accept protocol. Single-truck and
// multi-truck broadcasts go through the same conditional increment.
package acceptance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/ports/broadcasttx"
	"truck-dispatch/internal/retry"
	"truck-dispatch/internal/service/fanout"
)

var errVehicleAssigned = errors.New("vehicle already assigned")

// Config holds the accept timings.
type Config struct {
	Retry            retry.Config
	OperationTimeout time.Duration
}

// Service - atomic acceptance coordinator.
type Service struct {
	runner    broadcasttx.Runner
	publisher publisher
	cleaner   cleaner
	audience  audience
	outcomes  outcomes
	policy    retry.Policy
	timeout   time.Duration
	logger    logx.Logger
	now       func() time.Time
	newID     func() string
}

// NewService - creates a new acceptance Service. retries and outcomes may be nil.
func NewService(
	runner broadcasttx.Runner,
	pub publisher,
	cl cleaner,
	aud audience,
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
		audience:  aud,
		outcomes:  out,
		policy: retry.Policy{
			Name:      "accept",
			Config:    cfg.Retry,
			Retryable: broadcasttx.Retryable,
			Logger:    logger,
			Retries:   retries,
		},
		timeout: cfg.OperationTimeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Accept attempts to take one truck slot. Losing is a normal result (Won=false with a
// reason); errors are reserved for invalid input, unknown broadcasts and store failures.
func (s *Service) Accept(ctx context.Context, req domain.AcceptRequest) (domain.AcceptResult, error) {
	req, err := validate(req)
	if err != nil {
		return domain.AcceptResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		res        domain.AcceptResult
		after      domain.Broadcast
		assignment domain.Assignment
	)
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		res = domain.AcceptResult{}
		return s.runner.WithTx(ctx, func(tx broadcasttx.Repository) error {
			b, err := tx.GetBroadcast(ctx, req.BroadcastID)
			if err != nil {
				return err
			}
			if b == nil {
				return apperr.ErrNotFound
			}

			now := s.now()
			res.Status, res.TrucksFilled, res.TrucksNeeded = b.Status, b.TrucksFilled, b.TrucksNeeded
			if reason := eligibility(b, now); reason != "" {
				res.Reason = reason
				return nil
			}

			next, err := domain.Next(b.Status, domain.TriggerAccept, b.TrucksFilled+1, b.TrucksNeeded)
			if err != nil {
				res.Reason = domain.ReasonAlreadyTaken
				return nil
			}
			ok, err := tx.ApplyAccept(ctx, b.ID, b.TrucksFilled, next, now)
			if err != nil {
				return err
			}
			if !ok {
				res.Reason = domain.ReasonAlreadyTaken
				return nil
			}

			assignment = domain.Assignment{
				ID:            s.newID(),
				BroadcastID:   b.ID,
				TransporterID: req.TransporterID,
				VehicleID:     req.VehicleID,
				DriverID:      req.DriverID,
				Status:        domain.AssignmentPending,
				CreatedAt:     now,
			}
			if err := tx.InsertAssignment(ctx, &assignment); err != nil {
				if errors.Is(err, broadcasttx.ErrVehicleAssigned) {
					return errVehicleAssigned
				}
				return err
			}
			if err := tx.InsertTransition(ctx, domain.Transition{
				BroadcastID: b.ID,
				From:        b.Status,
				To:          next,
				Trigger:     domain.TriggerAccept.String(),
				ChangedAt:   now,
			}); err != nil {
				return err
			}

			after = *b
			after.TrucksFilled++
			after.Status = next
			after.StateChangedAt = now
			res = domain.AcceptResult{
				Won:          true,
				AssignmentID: assignment.ID,
				Status:       next,
				TrucksFilled: after.TrucksFilled,
				TrucksNeeded: after.TrucksNeeded,
			}
			return nil
		})
	})
	switch {
	case errors.Is(err, errVehicleAssigned):
		res = domain.AcceptResult{Reason: domain.ReasonVehicleAssigned}
	case err != nil:
		if apperr.IsRetryable(err) {
			s.outcomes.Observe("accept", "conflict")
		}
		return domain.AcceptResult{}, err
	}

	if !res.Won {
		s.lost(ctx, req, res)
		return res, nil
	}
	s.won(ctx, req, after, assignment)
	return res, nil
}

func (s *Service) lost(ctx context.Context, req domain.AcceptRequest, res domain.AcceptResult) {
	s.outcomes.Observe("accept", strings.ToLower(string(res.Reason)))
	s.logger.Info("accept lost",
		logx.String("broadcast_id", req.BroadcastID),
		logx.String("transporter_id", req.TransporterID),
		logx.String("reason", string(res.Reason)),
	)
	s.publisher.Publish(ctx, domain.Event{
		Type:        domain.EventAcceptRejected,
		BroadcastID: req.BroadcastID,
		Status:      res.Status,
		Message:     res.Reason.Message(),
		Data:        map[string]string{"reason": string(res.Reason)},
	}, domain.TransporterRoom(req.TransporterID))
}

func (s *Service) won(ctx context.Context, req domain.AcceptRequest, b domain.Broadcast, a domain.Assignment) {
	s.outcomes.Observe("accept", "won")
	s.logger.Info("accept won",
		logx.String("broadcast_id", b.ID),
		logx.String("assignment_id", a.ID),
		logx.String("transporter_id", a.TransporterID),
		logx.String("status", string(b.Status)),
		logx.Int("trucks_filled", b.TrucksFilled),
		logx.Int("trucks_needed", b.TrucksNeeded),
	)

	slots := map[string]string{
		"assignment_id":  a.ID,
		"transporter_id": a.TransporterID,
		"vehicle_id":     a.VehicleID,
		"driver_id":      a.DriverID,
		"trucks_filled":  strconv.Itoa(b.TrucksFilled),
		"trucks_needed":  strconv.Itoa(b.TrucksNeeded),
	}
	s.publisher.Publish(ctx, domain.Event{
		Type:        domain.EventBroadcastAccepted,
		BroadcastID: b.ID,
		CustomerID:  b.CustomerID,
		Status:      b.Status,
		Message:     "a transporter accepted your request",
		Data:        slots,
	}, domain.CustomerRoom(b.CustomerID))
	s.publisher.Publish(ctx, domain.Event{
		Type:        domain.EventAcceptConfirmed,
		BroadcastID: b.ID,
		Status:      b.Status,
		Message:     "assignment confirmed",
		Data:        slots,
	}, domain.TransporterRoom(a.TransporterID), domain.DriverRoom(a.DriverID))

	if b.Status == domain.StatusFullyFilled {
		notified := s.cleaner.Terminal(ctx, b)
		s.publisher.Publish(ctx, domain.Event{
			Type:        domain.EventBroadcastFilled,
			BroadcastID: b.ID,
			CustomerID:  b.CustomerID,
			Status:      b.Status,
			Message:     "all trucks assigned",
		}, append([]string{domain.CustomerRoom(b.CustomerID)}, fanout.TransporterRooms(notified)...)...)
		return
	}

	notified, err := s.audience.Notified(ctx, b.ID)
	if err != nil {
		s.logger.Warn("notified transporters unavailable", logx.String("broadcast_id", b.ID), logx.Err(err))
	}
	s.publisher.Publish(ctx, domain.Event{
		Type:        domain.EventBroadcastStatus,
		BroadcastID: b.ID,
		CustomerID:  b.CustomerID,
		Status:      b.Status,
		Data: map[string]string{
			"trucks_filled": strconv.Itoa(b.TrucksFilled),
			"trucks_needed": strconv.Itoa(b.TrucksNeeded),
		},
	}, append([]string{domain.CustomerRoom(b.CustomerID)}, fanout.TransporterRooms(notified)...)...)
}

func eligibility(b *domain.Broadcast, now time.Time) domain.RejectReason {
	switch {
	case b.Status == domain.StatusCancelled:
		return domain.ReasonCancelled
	case b.Status == domain.StatusExpired:
		return domain.ReasonExpired
	case b.Status.Active() && b.Expired(now):
		return domain.ReasonExpired
	case b.SlotsLeft() == 0, !b.Status.Allows(domain.TriggerAccept):
		return domain.ReasonAlreadyTaken
	default:
		return ""
	}
}

func validate(req domain.AcceptRequest) (domain.AcceptRequest, error) {
	req.BroadcastID = strings.TrimSpace(req.BroadcastID)
	req.TransporterID = strings.TrimSpace(req.TransporterID)
	req.VehicleID = strings.TrimSpace(req.VehicleID)
	req.DriverID = strings.TrimSpace(req.DriverID)
	if req.BroadcastID == "" || req.TransporterID == "" || req.VehicleID == "" || req.DriverID == "" {
		return req, apperr.ErrInvalid
	}
	return req, nil
}

type nopOutcomes struct{}

func (nopOutcomes) Observe(string, string) {}
