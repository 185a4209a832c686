package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeTTL = 24 * time.Hour

// EventDeduper short-circuits redelivered webhook events by id. The
// lifecycle controller's status guards stay the real idempotency barrier;
// this only saves the store round trip on hot redeliveries.
type EventDeduper struct {
	client *redis.Client
}

func NewEventDeduper(client *redis.Client) *EventDeduper {
	return &EventDeduper{client: client}
}

func (d *EventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, "webhook:evt:"+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen is called only after the event was applied. Marking up front
// would turn a transiently-failed delivery into a permanent loss: the
// retry would dedupe away and the transition would never land.
func (d *EventDeduper) MarkSeen(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, "webhook:evt:"+eventID, 1, dedupeTTL).Err()
}
