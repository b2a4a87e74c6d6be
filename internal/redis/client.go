package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client holds the connection shared by the stores in this package.
type Client struct {
	rdb *redis.Client
}

// NewClient connects using a redis URL such as "redis://localhost:6379".
// The connection is not verified here; call Ping for that.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts)}, nil
}

// Ping verifies the connection. cmd/server runs it at startup and wires it as
// the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
