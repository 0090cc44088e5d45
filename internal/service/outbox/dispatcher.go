// Package outbox relays committed outbox rows to Kafka.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/kafka"
	"github.com/Domenick1991/airbooking-core/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/Domenick1991/airbooking-core/internal/service/outbox")

const defaultBatchSize = 100

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	repo      repository.OutboxRepository
	publisher Publisher
	batchSize int
	logger    *zap.Logger
}

func NewDispatcher(repo repository.OutboxRepository, publisher Publisher, batchSize int, logger *zap.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Dispatcher{repo: repo, publisher: publisher, batchSize: batchSize, logger: logger}
}

// Run polls the outbox until ctx is done. A full batch is followed
// immediately by another poll.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sent, err := d.DispatchOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}
		if err == nil && sent == d.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes one batch and returns how many messages were marked sent.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "outbox.DispatchOnce")
	defer span.End()

	sent, err := d.repo.Dispatch(ctx, d.batchSize, d.publish)
	span.SetAttributes(attribute.Int("outbox.sent", sent))
	if err != nil {
		span.RecordError(err)
	}
	if sent > 0 {
		d.logger.Info("outbox dispatched", zap.Int("messages", sent))
	}
	return sent, err
}

func (d *Dispatcher) publish(ctx context.Context, msgs []repository.OutboxMessage) (int, error) {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, kafka.Message{
			Topic:   m.Topic,
			Key:     m.Key,
			Value:   m.Payload,
			Headers: m.Headers,
		})
	}

	err := d.publisher.Publish(ctx, out...)
	if err == nil {
		return len(msgs), nil
	}
	return deliveredPrefix(err), err
}

// deliveredPrefix counts leading messages the broker acknowledged before the first failure.
func deliveredPrefix(err error) int {
	var werrs kafkaGo.WriteErrors
	if !errors.As(err, &werrs) {
		return 0
	}
	n := 0
	for _, e := range werrs {
		if e != nil {
			break
		}
		n++
	}
	return n
}
