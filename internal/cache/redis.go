// Package cache provides a tiny Redis client wrapper for memoizing
// serialized prediction results between runs.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// predictionTTL bounds how long a cached result outlives the run that
// produced it. Model archives change rarely; a day is plenty.
const predictionTTL = 24 * time.Hour

// Cache wraps a Redis client for prediction result storage
type Cache struct {
	client *redis.Client
}

// New creates a new Cache instance connected to the specified Redis address
// If addr is empty, defaults to localhost:6379
func New(addr string) (*Cache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password by default
		DB:       0,  // Default DB
	})

	// Verify connectivity up front so a bad address fails the run
	// immediately instead of on the first record.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &Cache{client: client}, nil
}

// Get retrieves a cached prediction line. The second return value reports
// whether the key was present.
func (c *Cache) Get(key string) (string, bool, error) {
	if c.client == nil {
		return "", false, fmt.Errorf("cache client is nil")
	}

	ctx := context.Background()
	data, err := c.client.Get(ctx, "prediction:"+key).Result()
	if err == redis.Nil {
		return "", false, nil // Key does not exist
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get prediction %s: %w", key, err)
	}

	return data, true, nil
}

// Set stores a prediction line under the given key
func (c *Cache) Set(key, value string) error {
	if c.client == nil {
		return fmt.Errorf("cache client is nil")
	}

	ctx := context.Background()
	if err := c.client.Set(ctx, "prediction:"+key, value, predictionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set prediction %s: %w", key, err)
	}

	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
