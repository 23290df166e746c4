package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "sync-admin/internal/domain/table"
)

// PageCache defines caching operations for fetched pages.
type PageCache[T any] interface {
	// Get returns the cached page for req, or nil on a miss.
	Get(ctx context.Context, req domain.FetchRequest) (*domain.Page[T], error)

	// Set stores a page with the configured TTL.
	Set(ctx context.Context, req domain.FetchRequest, page *domain.Page[T]) error

	// Invalidate drops every cached page of the table.
	Invalidate(ctx context.Context) error
}

type cachedPage[T any] struct {
	Items      []T `json:"items"`
	TotalPages int `json:"totalPages"`
}

// RedisPageCache implements PageCache using Redis as the backing store.
// Keys look like page:<table>:<canonical request>.
type RedisPageCache[T any] struct {
	client redis.UniversalClient
	table  string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisPageCache creates a Redis-backed page cache for one table.
func NewRedisPageCache[T any](client redis.UniversalClient, table string, ttl time.Duration, log *zap.Logger) *RedisPageCache[T] {
	return &RedisPageCache[T]{
		client: client,
		table:  table,
		ttl:    ttl,
		log:    log.With(zap.String("table", table)),
	}
}

func (c *RedisPageCache[T]) prefix() string {
	return fmt.Sprintf("page:%s:", c.table)
}

func (c *RedisPageCache[T]) cacheKey(req domain.FetchRequest) string {
	return c.prefix() + req.Key()
}

// Get retrieves a page from Redis.
func (c *RedisPageCache[T]) Get(ctx context.Context, req domain.FetchRequest) (*domain.Page[T], error) {
	key := c.cacheKey(req)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("cache miss", zap.String("key", key))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached page: %w", err)
	}

	var cp cachedPage[T]
	if err := json.Unmarshal(data, &cp); err != nil {
		c.log.Warn("dropping undecodable cached page", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return nil, nil
	}

	c.log.Debug("cache hit", zap.String("key", key))
	return domain.NewPage(cp.Items, cp.TotalPages), nil
}

// Set stores a page in Redis with TTL.
func (c *RedisPageCache[T]) Set(ctx context.Context, req domain.FetchRequest, page *domain.Page[T]) error {
	if page == nil {
		return errors.New("cannot cache nil page")
	}

	data, err := json.Marshal(cachedPage[T]{Items: page.Items, TotalPages: page.TotalPages})
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}

	key := c.cacheKey(req)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached page: %w", err)
	}

	c.log.Debug("cached page", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

// Invalidate removes all cached pages of the table.
func (c *RedisPageCache[T]) Invalidate(ctx context.Context) error {
	var removed int
	iter := c.client.Scan(ctx, 0, c.prefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete cached page: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached pages: %w", err)
	}

	c.log.Debug("invalidated cached pages", zap.Int("count", removed))
	return nil
}
