package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Martaccvlc/ImageResizingAPI/internal/model"
)

const viewKeyPrefix = "task:view:"

// TaskCache caches serialized task views in Redis so that polling GETs do
// not hit Postgres on every request. It is never authoritative: a miss or
// a Redis error always falls back to the store.
type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect creates a Redis-backed TaskCache and verifies the connection.
func Connect(ctx context.Context, addr string, ttl time.Duration) (*TaskCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &TaskCache{client: client, ttl: ttl}, nil
}

// Get returns the cached task, or an error on miss.
func (c *TaskCache) Get(ctx context.Context, taskID string) (model.Task, error) {
	data, err := c.client.Get(ctx, viewKeyPrefix+taskID).Result()
	if err != nil {
		return model.Task{}, err
	}

	var t model.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return model.Task{}, fmt.Errorf("unmarshal cached task: %w", err)
	}

	return t, nil
}

// Set stores the task view with the configured TTL.
func (c *TaskCache) Set(ctx context.Context, t model.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	return c.client.Set(ctx, viewKeyPrefix+t.ID.String(), data, c.ttl).Err()
}

// Invalidate drops the cached view for a task. Called on every status
// transition so reads after a write never observe a stale terminal state.
func (c *TaskCache) Invalidate(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, viewKeyPrefix+taskID).Err()
}

// Close releases the underlying Redis connection.
func (c *TaskCache) Close() error {
	return c.client.Close()
}
