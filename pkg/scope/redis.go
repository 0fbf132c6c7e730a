package scope

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures the shared scope cache connection
type RedisOptions struct {
	URL        string
	Password   string
	DB         int // negative keeps the database from the URL
	PoolSize   int
	MaxRetries int
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if o.Password != "" {
		opts.Password = o.Password
	}
	if o.DB >= 0 {
		opts.DB = o.DB
	}
	if o.MaxRetries > 0 {
		opts.MaxRetries = o.MaxRetries
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
