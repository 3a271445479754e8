// Package push turns lifecycle events read from the event stream into out-of-band
// notifications for the people who are not watching a live subscription.
package push

import (
	"context"
	"errors"
	"time"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
)

const deliveryTTL = 24 * time.Hour

// Processor processes lifecycle events.
type Processor struct {
	sender  Sender
	ledger  Ledger
	factory *ruleFactory
	logger  logx.Logger
}

// NewProcessor creates a Processor. ledger may be nil, in which case redelivered events are
// sent again.
func NewProcessor(sender Sender, ledger Ledger, logger logx.Logger) *Processor {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Processor{sender: sender, ledger: ledger, factory: newRuleFactory(), logger: logger}
}

// Handle sends the messages for a single event. A failed send is returned so the consumer
// retries; recipients already served are skipped on the retry.
func (p *Processor) Handle(ctx context.Context, e domain.Event) error {
	r, ok := p.factory.get(e.Type)
	if !ok {
		return nil
	}
	msg := r.message(e)

	var errs []error
	for _, room := range e.Rooms {
		to, ok := parseRoom(room)
		if !ok || !r.accepts(to.Kind) {
			continue
		}
		if err := p.deliver(ctx, e, to, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) deliver(ctx context.Context, e domain.Event, to Recipient, msg string) error {
	key := e.ID + ":" + to.String()
	if p.ledger != nil && e.ID != "" {
		fresh, err := p.ledger.Claim(ctx, key, deliveryTTL)
		if err != nil {
			p.logger.Warn("delivery ledger unavailable, sending anyway",
				logx.String("event_id", e.ID),
				logx.Err(err),
			)
		} else if !fresh {
			return nil
		}
	}

	if err := p.sender.Send(ctx, to, msg); err != nil {
		if errors.Is(err, ErrUndeliverable) {
			p.logger.Warn("recipient undeliverable",
				logx.String("event_id", e.ID),
				logx.String("recipient", to.String()),
			)
			return err
		}
		if p.ledger != nil && e.ID != "" {
			if rerr := p.ledger.Release(context.WithoutCancel(ctx), key); rerr != nil {
				p.logger.Warn("delivery claim not released",
					logx.String("event_id", e.ID),
					logx.String("recipient", to.String()),
					logx.Err(rerr),
				)
			}
		}
		return err
	}
	return nil
}

// Undeliverable reports whether every failure joined in err is ErrUndeliverable, so a
// redelivered event would fail the same way.
func Undeliverable(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !Undeliverable(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, ErrUndeliverable)
}
