// Package broadcast orchestrates the broadcast lifecycle: creation behind the dedup and
// per-customer guard, the notify and response-window transitions, expiry, closure and the
// read side.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/ports/broadcasttx"
	"truck-dispatch/internal/retry"
	"truck-dispatch/internal/service/dedup"
	"truck-dispatch/internal/service/fanout"
)

type runner = broadcasttx.Runner

// Config holds lifecycle settings.
type Config struct {
	// Timeout applies to every broadcast regardless of the number of trucks.
	Timeout          time.Duration
	MarkerTTL        time.Duration
	MaxTrucks        int
	CandidateLimit   int
	Retry            retry.Config
	OperationTimeout time.Duration
}

// Service - broadcast lifecycle orchestrator.
type Service struct {
	d       Deps
	cfg     Config
	policy  retry.Policy
	logger  logx.Logger
	now     func() time.Time
	newID   func() string
	timeout time.Duration
}

// NewService - creates a new lifecycle Service. retries may be nil.
func NewService(d Deps, cfg Config, retries retry.Counter, logger logx.Logger) *Service {
	if logger == nil {
		logger = logx.Nop()
	}
	if d.Outcomes == nil {
		d.Outcomes = nopOutcomes{}
	}
	if cfg.MaxTrucks <= 0 {
		cfg.MaxTrucks = 10
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 200
	}
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = cfg.Timeout
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	return &Service{
		d:   d,
		cfg: cfg,
		policy: retry.Policy{
			Name:      "broadcast",
			Config:    cfg.Retry,
			Retryable: broadcasttx.Retryable,
			Logger:    logger,
			Retries:   retries,
		},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		timeout: cfg.OperationTimeout,
	}
}

// Create starts a broadcast. An identical request within the dedup window returns the
// existing broadcast with Deduplicated set; a different live request of the same customer
// fails with ALREADY_ACTIVE.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.CreateResult, error) {
	req, err := s.validate(req)
	if err != nil {
		return domain.CreateResult{}, err
	}
	fare, err := s.d.Pricing.Estimate(req.VehicleType, req.DistanceKm, req.TrucksNeeded)
	if err != nil {
		return domain.CreateResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fp := dedup.Fingerprint(req)
	var res domain.CreateResult
	err = s.d.Guard.Run(ctx, req.CustomerID, func(ctx context.Context) error {
		res = domain.CreateResult{}
		id := s.newID()

		existing, err := s.d.Dedup.Claim(ctx, fp, id)
		if err != nil {
			return err
		}
		if existing != nil {
			res = domain.CreateResult{Broadcast: *existing, Deduplicated: true}
			return nil
		}

		active, err := s.d.Guard.Active(ctx, req.CustomerID)
		if err != nil {
			s.d.Dedup.Forget(ctx, fp, id)
			return err
		}
		if active != nil {
			s.d.Dedup.Forget(ctx, fp, id)
			return s.resolveActive(active, fp, &res)
		}

		b, err := s.insert(ctx, id, req, fp, fare.PerTruck)
		if err != nil {
			s.d.Dedup.Forget(ctx, fp, id)
			if !errors.Is(err, broadcasttx.ErrCustomerActive) {
				return err
			}
			// lost a race the lease did not cover; the unique index decided
			active, aerr := s.d.Store.ActiveForCustomer(ctx, req.CustomerID)
			if aerr != nil {
				return aerr
			}
			return s.resolveActive(active, fp, &res)
		}

		s.d.Guard.Mark(ctx, b.CustomerID, b.ID)
		res = domain.CreateResult{Broadcast: b}
		return nil
	})
	if err != nil {
		s.d.Outcomes.Observe("create", outcomeOf(err))
		return domain.CreateResult{}, err
	}

	if res.Deduplicated {
		s.d.Outcomes.Observe("create", "deduplicated")
		s.logger.Info("broadcast create deduplicated",
			logx.String("broadcast_id", res.Broadcast.ID),
			logx.String("customer_id", res.Broadcast.CustomerID),
		)
		return res, nil
	}

	s.d.Outcomes.Observe("create", "created")
	s.logger.Info("broadcast created",
		logx.String("broadcast_id", res.Broadcast.ID),
		logx.String("customer_id", res.Broadcast.CustomerID),
		logx.Int("trucks_needed", res.Broadcast.TrucksNeeded),
		logx.Time("expires_at", res.Broadcast.ExpiresAt),
	)
	if err := s.d.Scheduler.Schedule(ctx, res.Broadcast.ID, res.Broadcast.ExpiresAt); err != nil {
		s.logger.Warn("expiry not scheduled, reconcile will restore it",
			logx.String("broadcast_id", res.Broadcast.ID),
			logx.Err(err),
		)
	}
	s.d.Publisher.Publish(ctx, domain.Event{
		Type:        domain.EventBroadcastCreated,
		BroadcastID: res.Broadcast.ID,
		CustomerID:  res.Broadcast.CustomerID,
		Status:      res.Broadcast.Status,
		Data: map[string]string{
			"expires_at":     res.Broadcast.ExpiresAt.Format(time.RFC3339),
			"fare_per_truck": strconv.FormatInt(res.Broadcast.FarePerTruck, 10),
		},
	}, domain.CustomerRoom(res.Broadcast.CustomerID))

	res.Broadcast, res.Notified = s.dispatch(ctx, res.Broadcast)
	return res, nil
}

func (s *Service) resolveActive(active *domain.Broadcast, fp string, res *domain.CreateResult) error {
	if active == nil {
		return apperr.Wrap(apperr.CodeSerializationConflict, "please try again",
			errors.New("active broadcast vanished during create"))
	}
	if active.Fingerprint == fp {
		*res = domain.CreateResult{Broadcast: *active, Deduplicated: true}
		return nil
	}
	return apperr.Wrap(apperr.CodeAlreadyActive, "customer already has an active request",
		fmt.Errorf("broadcast %s is %s", active.ID, active.Status))
}

func (s *Service) insert(ctx context.Context, id string, req domain.CreateRequest, fp string, farePerTruck int64) (domain.Broadcast, error) {
	now := s.now()
	b := domain.Broadcast{
		ID:             id,
		CustomerID:     req.CustomerID,
		VehicleType:    req.VehicleType,
		VehicleSubtype: req.VehicleSubtype,
		Pickup:         req.Pickup,
		Drop:           req.Drop,
		DistanceKm:     req.DistanceKm,
		FarePerTruck:   farePerTruck,
		TrucksNeeded:   req.TrucksNeeded,
		Status:         domain.StatusCreated,
		Fingerprint:    fp,
		CreatedAt:      now,
		StateChangedAt: now,
		ExpiresAt:      now.Add(s.cfg.Timeout),
	}
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.d.Runner.WithTx(ctx, func(tx broadcasttx.Repository) error {
			if err := tx.InsertBroadcast(ctx, &b); err != nil {
				return err
			}
			return tx.InsertTransition(ctx, domain.Transition{
				BroadcastID: b.ID,
				From:        "",
				To:          domain.StatusCreated,
				Trigger:     "create",
				ChangedAt:   now,
			})
		})
	})
	return b, err
}

// dispatch notifies candidate transporters and opens the response window. The notify
// transition commits before any transporter learns of the broadcast, so an offer is always
// acceptable on arrival. A concurrent accept or cancel may already have moved the broadcast
// on; the conditional transitions then leave it alone.
func (s *Service) dispatch(ctx context.Context, b domain.Broadcast) (domain.Broadcast, int) {
	candidates, err := s.d.Fleet.Candidates(ctx, b.VehicleType, b.VehicleSubtype, s.cfg.CandidateLimit)
	if err != nil {
		s.logger.Warn("fleet lookup failed, broadcasting to nobody",
			logx.String("broadcast_id", b.ID),
			logx.Err(err),
		)
	}

	after, moved, ok := s.step(ctx, b, domain.TriggerNotify, candidates)
	if !ok || !moved {
		return after, 0
	}
	b = after

	if err := s.d.Audience.AddNotified(ctx, b.ID, candidates, s.now(), s.cfg.MarkerTTL); err != nil {
		s.logger.Warn("notified set not recorded",
			logx.String("broadcast_id", b.ID),
			logx.Err(err),
		)
	}
	if len(candidates) > 0 {
		s.d.Publisher.Publish(ctx, domain.Event{
			Type:        domain.EventBroadcastNew,
			BroadcastID: b.ID,
			Status:      b.Status,
			Message:     "new truck request",
			Data: map[string]string{
				"vehicle_type":    b.VehicleType,
				"vehicle_subtype": b.VehicleSubtype,
				"trucks_needed":   strconv.Itoa(b.TrucksNeeded),
				"fare_per_truck":  strconv.FormatInt(b.FarePerTruck, 10),
				"distance_km":     strconv.FormatFloat(b.DistanceKm, 'f', 1, 64),
				"expires_at":      b.ExpiresAt.Format(time.RFC3339),
			},
		}, fanout.TransporterRooms(candidates)...)
	}

	if after, _, ok := s.step(ctx, b, domain.TriggerOpenWindow, candidates); ok {
		b = after
	}
	return b, len(candidates)
}

// step applies one dispatch trigger and announces the new status. ok is false when the
// transition failed and was logged.
func (s *Service) step(ctx context.Context, b domain.Broadcast, t domain.Trigger, candidates []string) (domain.Broadcast, bool, bool) {
	after, moved, err := s.advance(ctx, b.ID, "", t)
	if err != nil {
		s.logger.Warn("broadcast transition failed",
			logx.String("broadcast_id", b.ID),
			logx.String("trigger", t.String()),
			logx.Err(err),
		)
		return b, false, false
	}
	if !moved {
		return after, false, true
	}
	s.d.Publisher.Publish(ctx, domain.Event{
		Type:        domain.EventBroadcastStatus,
		BroadcastID: after.ID,
		CustomerID:  after.CustomerID,
		Status:      after.Status,
		Data:        map[string]string{"notified": strconv.Itoa(len(candidates))},
	}, append([]string{domain.CustomerRoom(after.CustomerID)}, fanout.TransporterRooms(candidates)...)...)
	return after, true, true
}

func (s *Service) validate(req domain.CreateRequest) (domain.CreateRequest, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.VehicleType = strings.ToLower(strings.TrimSpace(req.VehicleType))
	req.VehicleSubtype = strings.TrimSpace(req.VehicleSubtype)
	switch {
	case req.CustomerID == "", req.VehicleType == "":
		return req, apperr.ErrInvalid
	case req.TrucksNeeded <= 0 || req.TrucksNeeded > s.cfg.MaxTrucks:
		return req, fmt.Errorf("%w: trucks must be between 1 and %d", apperr.ErrInvalid, s.cfg.MaxTrucks)
	case !req.Pickup.Valid() || !req.Drop.Valid():
		return req, fmt.Errorf("%w: coordinates out of range", apperr.ErrInvalid)
	case req.DistanceKm < 0:
		return req, fmt.Errorf("%w: negative distance", apperr.ErrInvalid)
	}
	return req, nil
}

func outcomeOf(err error) string {
	if code := apperr.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	if errors.Is(err, apperr.ErrInvalid) {
		return "invalid"
	}
	return "error"
}

type nopOutcomes struct{}

func (nopOutcomes) Observe(string, string) {}
