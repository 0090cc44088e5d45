package cache

import (
	"testing"
	"time"

	"github.com/Domenick1991/airbooking-core/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewRedisCache(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "localhost:6379"}, time.Minute)
	assert.NotNil(t, c)
	assert.Equal(t, time.Minute, c.flightsTTL)
	assert.NoError(t, c.Close())
}

func TestFlightKey(t *testing.T) {
	id := uuid.MustParse("6f1c2a1e-4b7d-4c55-9d55-0c1f5a6b7c8d")
	assert.Equal(t, "cache:flight:6f1c2a1e-4b7d-4c55-9d55-0c1f5a6b7c8d", flightKey(id))
}
