package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheProduct stores a catalog product payload with TTL
func (c *Client) CacheProduct(ctx context.Context, productID string, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("catalog:product:%s", productID), payload, ttl).Err()
}

// GetCachedProduct retrieves a cached catalog product payload.
// Returns nil without error on a cache miss.
func (c *Client) GetCachedProduct(ctx context.Context, productID string) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, fmt.Sprintf("catalog:product:%s", productID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// InvalidateProduct drops a cached catalog product
func (c *Client) InvalidateProduct(ctx context.Context, productID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("catalog:product:%s", productID)).Err()
}

// MarkIPNSeen records that a provider notification for the tracking id is
// being processed. Returns false if another delivery already claimed it
// within the TTL window.
func (c *Client) MarkIPNSeen(ctx context.Context, trackingID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("ipn:seen:%s", trackingID), "1", ttl).Result()
}

// ClearIPNSeen drops the processing mark so a later genuine notification for
// the same transaction is not swallowed
func (c *Client) ClearIPNSeen(ctx context.Context, trackingID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("ipn:seen:%s", trackingID)).Err()
}
