package store

import (
	"context"
	"sync"
	"time"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/schedina"
)

type cachedTable struct {
	rows     []schedina.KeyValue
	storedAt time.Time
}

// InMemoryCache keeps tables in process memory with TTL expiration.
type InMemoryCache struct {
	mu     sync.RWMutex
	tables map[models.TableType]cachedTable
	ttl    time.Duration
	clock  func() time.Time
}

// NewInMemoryCache creates a cache whose entries expire after ttl.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		tables: make(map[models.TableType]cachedTable),
		ttl:    ttl,
		clock:  time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *InMemoryCache) WithClock(clock func() time.Time) *InMemoryCache {
	c.clock = clock
	return c
}

func (c *InMemoryCache) Set(_ context.Context, table models.TableType, rows []schedina.KeyValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[table] = cachedTable{rows: append([]schedina.KeyValue(nil), rows...), storedAt: c.clock()}
	return nil
}

// Get returns ErrNotFound if the table is missing or older than the TTL.
func (c *InMemoryCache) Get(_ context.Context, table models.TableType) ([]schedina.KeyValue, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.tables[table]; ok {
		if c.clock().Sub(cached.storedAt) < c.ttl {
			return append([]schedina.KeyValue(nil), cached.rows...), nil
		}
	}
	return nil, ErrNotFound
}
