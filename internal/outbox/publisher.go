// Package outbox relays staged reservation events from the store to the
// message broker. Records are written in the same transaction as the
// state change they describe; this publisher polls them out and marks
// them published after the broker accepts the delivery, so consumers see
// at-least-once delivery keyed by DedupeKey.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/cinema-booking/internal/adapters/rabbit"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

const batchSize = 10

type Publisher struct {
	store     ports.OutboxStore
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	interval  time.Duration
}

func NewPublisher(store ports.OutboxStore, rabbitPub *rabbit.Publisher, logger observability.Logger, interval time.Duration) *Publisher {
	return &Publisher{store: store, rabbitPub: rabbitPub, logger: logger, interval: interval}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		records, err := p.store.GetUnpublishedOutbox(ctx, batchSize)
		if err != nil {
			p.logger.WithError(err).Error("failed to fetch outbox records")
			return
		}
		if len(records) == 0 {
			observability.OutboxLag.Set(0)
			return
		}
		observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())

		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Timestamp:   rec.CreatedAt,
				Body:        rec.Payload,
			}
			if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
				// Leave the record NEW; the next tick retries it.
				p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("failed to publish outbox record")
				return
			}
			if err := p.store.MarkPublished(ctx, rec.ID, time.Now().UTC(), rec.DedupeKey); err != nil {
				// The event went out but stayed NEW: it will be published
				// again. Consumers dedupe on MessageId.
				p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("failed to mark outbox record published")
				return
			}
		}
		if len(records) < batchSize {
			return
		}
	}
}
