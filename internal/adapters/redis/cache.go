// Package redis caches raw indexer responses.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gaproadmap/internal/domain"
)

const keyPrefix = "gap:updates:"

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func key(projectUID string) string { return keyPrefix + projectUID }

func (c *Cache) Get(ctx context.Context, projectUID string) (domain.UpdatesResponse, bool, error) {
	var resp domain.UpdatesResponse
	data, err := c.rdb.Get(ctx, key(projectUID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return resp, false, nil
	}
	if err != nil {
		return resp, false, err
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, false, fmt.Errorf("decode cached updates: %w", err)
	}
	return resp, true, nil
}

func (c *Cache) Set(ctx context.Context, projectUID string, resp domain.UpdatesResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(projectUID), data, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, projectUID string) error {
	return c.rdb.Del(ctx, key(projectUID)).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
