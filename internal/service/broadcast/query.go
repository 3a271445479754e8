package broadcast

import (
	"context"
	"strings"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
)

// Get returns the broadcast with its assignments.
func (s *Service) Get(ctx context.Context, id string) (domain.BroadcastView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.BroadcastView{}, apperr.ErrInvalid
	}
	b, err := s.d.Store.Get(ctx, id)
	if err != nil {
		return domain.BroadcastView{}, err
	}
	if b == nil {
		return domain.BroadcastView{}, apperr.ErrNotFound
	}
	as, err := s.d.Store.Assignments(ctx, id)
	if err != nil {
		return domain.BroadcastView{}, err
	}
	return domain.BroadcastView{Broadcast: *b, Assignments: as}, nil
}

// ListForTransporter returns the broadcasts a transporter was notified of that can still be
// accepted, newest notification first. Stale inbox entries are dropped on the way.
func (s *Service) ListForTransporter(ctx context.Context, transporterID string, limit int) ([]domain.Broadcast, error) {
	transporterID = strings.TrimSpace(transporterID)
	if transporterID == "" {
		return nil, apperr.ErrInvalid
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	ids, err := s.d.Audience.Inbox(ctx, transporterID, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Broadcast{}, nil
	}
	rows, err := s.d.Store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Broadcast, len(rows))
	for _, b := range rows {
		byID[b.ID] = b
	}

	now := s.now()
	out := make([]domain.Broadcast, 0, len(ids))
	for _, id := range ids {
		b, ok := byID[id]
		if ok && b.Status.Allows(domain.TriggerAccept) && !b.Expired(now) && b.SlotsLeft() > 0 {
			out = append(out, b)
			continue
		}
		if err := s.d.Audience.RemoveFromInbox(ctx, transporterID, id); err != nil {
			s.logger.Warn("stale inbox entry not removed",
				logx.String("transporter_id", transporterID),
				logx.String("broadcast_id", id),
				logx.Err(err),
			)
		}
	}
	return out, nil
}
