package app

import (
	"context"

	"go.uber.org/dig"

	"truck-dispatch/internal/config"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/kvstore"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/service/push"
	"truck-dispatch/internal/transport/kafka"
)

func newPushProcessor(logger logx.Logger, deliveries *kvstore.Deliveries) *push.Processor {
	return push.NewProcessor(push.NewLogSender(logger), deliveries, logger)
}

// newConsumer subscribes the push processor to the lifecycle stream. It returns nil when
// Kafka is not configured.
func newConsumer(cfg *config.Config, logger logx.Logger, p *push.Processor) (*kafka.Consumer, error) {
	return kafka.NewConsumer(logger, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, pushHandler(p))
}

// pushHandler stops the consumer from retrying events whose every recipient is unreachable.
func pushHandler(p *push.Processor) kafka.HandleFunc {
	return func(ctx context.Context, e domain.Event) error {
		err := p.Handle(ctx, e)
		if push.Undeliverable(err) {
			return kafka.Permanent(err)
		}
		return err
	}
}

func registerWorker(container *dig.Container) error {
	return provideAll(container,
		newPushProcessor,
		newConsumer,
	)
}
