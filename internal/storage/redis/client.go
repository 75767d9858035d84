// Package redis provides Redis-backed storage implementations.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client for dependency injection.
type Client struct {
	*redis.Client
}

// NewClient connects to the Redis server at url (redis://host:port/db).
func NewClient(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
