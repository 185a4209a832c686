package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/cinema-booking/internal/domain"
)

const seatMapTTL = 10 * time.Second

// Cache holds the short-lived seat-map projection per showtime. The store
// remains the source of truth; the cache is invalidated on every
// allocation change.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func seatMapKey(showtimeID int64) string {
	return fmt.Sprintf("seatmap:%d", showtimeID)
}

func (c *Cache) Get(ctx context.Context, showtimeID int64) (*domain.SeatMap, error) {
	val, err := c.client.Get(ctx, seatMapKey(showtimeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m domain.SeatMap
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Cache) Set(ctx context.Context, m *domain.SeatMap) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, seatMapKey(m.ShowtimeID), data, seatMapTTL).Err()
}

func (c *Cache) Invalidate(ctx context.Context, showtimeID int64) error {
	return c.client.Del(ctx, seatMapKey(showtimeID)).Err()
}
