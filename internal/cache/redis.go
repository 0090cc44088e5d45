package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airbooking-core/config"
	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps read-only flight records close to the booking path.
// Seat counters are never cached.
type RedisCache struct {
	client     redis.UniversalClient
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		flightsTTL,
	)
}

func NewRedisCacheWithClient(client redis.UniversalClient, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, flightsTTL: flightsTTL}
}

// GetFlight returns nil, nil on a cache miss.
func (c *RedisCache) GetFlight(ctx context.Context, id uuid.UUID) (*domain.Flight, error) {
	data, err := c.client.Get(ctx, flightKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var flight domain.Flight
	if err := json.Unmarshal(data, &flight); err != nil {
		return nil, err
	}
	return &flight, nil
}

func (c *RedisCache) SetFlight(ctx context.Context, flight *domain.Flight) error {
	payload, err := json.Marshal(flight)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightKey(flight.ID), payload, c.flightsTTL).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func flightKey(id uuid.UUID) string {
	return fmt.Sprintf("cache:flight:%s", id)
}
