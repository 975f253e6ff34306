package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/schedina"
)

const tableKeyPrefix = "alloggiati:table:"

// RedisCache shares decoded tables between instances. Entries expire through
// the Redis TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Set(ctx context.Context, table models.TableType, rows []schedina.KeyValue) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal table %s: %w", table, err)
	}
	if err := c.client.Set(ctx, tableKeyPrefix+string(table), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache table %s: %w", table, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, table models.TableType) ([]schedina.KeyValue, error) {
	payload, err := c.client.Get(ctx, tableKeyPrefix+string(table)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cached table %s: %w", table, err)
	}
	var rows []schedina.KeyValue
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode cached table %s: %w", table, err)
	}
	return rows, nil
}
