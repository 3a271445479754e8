package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/IBM/sarama"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
)

var newAsyncProducer = sarama.NewAsyncProducer

// eventMeta rides on ProducerMessage.Metadata so acks can be logged per event.
type eventMeta struct {
	eventType   string
	broadcastID string
}

// Producer writes lifecycle events to the broadcast-events topic, keyed by broadcast id so a
// broadcast's events stay ordered within a partition. Emit only enqueues; broker acks and
// failures are reported asynchronously through the logger.
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   logx.Logger
	wg       sync.WaitGroup
}

// NewProducer creates a producer. It returns nil when Kafka is not configured.
func NewProducer(logger logx.Logger, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" {
		return nil, nil
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 2

	p, err := newAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return newProducer(p, topic, logger), nil
}

func newProducer(p sarama.AsyncProducer, topic string, logger logx.Logger) *Producer {
	if logger == nil {
		logger = logx.Nop()
	}
	out := &Producer{producer: p, topic: topic, logger: logger}
	out.wg.Add(2)
	go out.drainSuccesses()
	go out.drainErrors()
	return out
}

// Emit enqueues one event. It gives up when ctx ends before the producer accepts the
// message. A nil Producer drops it.
func (p *Producer) Emit(ctx context.Context, e domain.Event) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(FromDomain(e))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic:    p.topic,
		Key:      sarama.StringEncoder(e.BroadcastID),
		Value:    sarama.ByteEncoder(payload),
		Metadata: eventMeta{eventType: string(e.Type), broadcastID: e.BroadcastID},
	}
	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", e.Type, ctx.Err())
	}
}

func (p *Producer) drainSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		meta, _ := msg.Metadata.(eventMeta)
		p.logger.Debug("event produced",
			logx.String("type", meta.eventType),
			logx.String("broadcast_id", meta.broadcastID),
			logx.Int("partition", int(msg.Partition)),
			logx.Int64("offset", msg.Offset),
		)
	}
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		var meta eventMeta
		if perr.Msg != nil {
			meta, _ = perr.Msg.Metadata.(eventMeta)
		}
		p.logger.Warn("event produce failed",
			logx.String("type", meta.eventType),
			logx.String("broadcast_id", meta.broadcastID),
			logx.Err(perr.Err),
		)
	}
}

// Close flushes buffered events and waits for their acks to be logged.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}
