package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/grader/internal/core/domain"
)

// Client wraps Redis operations for the evaluation pipeline: a
// key-value idempotency ledger plus per-request processing locks.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func resultKey(requestID string) string {
	return fmt.Sprintf("eval:result:%s", requestID)
}

func lockKey(requestID string) string {
	return fmt.Sprintf("eval:processing:%s", requestID)
}

func jobKey(jobID string) string {
	return fmt.Sprintf("eval:job:%s", jobID)
}

// GetByRequestID retrieves a result, or (nil, nil) when absent.
func (c *Client) GetByRequestID(ctx context.Context, requestID string) (*domain.EvaluationResult, error) {
	val, err := c.rdb.Get(ctx, resultKey(requestID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var result domain.EvaluationResult
	if err := json.Unmarshal(val, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// GetByJobID retrieves the result produced by a job via the job index
// key, or (nil, nil) when the job is unknown.
func (c *Client) GetByJobID(ctx context.Context, jobID string) (*domain.EvaluationResult, error) {
	requestID, err := c.rdb.Get(ctx, jobKey(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return c.GetByRequestID(ctx, requestID)
}

// Upsert stores a result keyed on its request ID (last write wins) and
// indexes it by the producing job ID.
func (c *Client) Upsert(ctx context.Context, result *domain.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := c.rdb.Set(ctx, resultKey(result.RequestID), data, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	if result.JobID != "" {
		if err := c.rdb.Set(ctx, jobKey(result.JobID), result.RequestID, 0).Err(); err != nil {
			return fmt.Errorf("set job index failed: %w", err)
		}
	}
	return nil
}

// AcquireLock attempts to acquire a processing lock for a request so two
// workers sharing the store do not double-call the model.
func (c *Client) AcquireLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(requestID), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases a processing lock.
func (c *Client) ReleaseLock(ctx context.Context, requestID string) error {
	return c.rdb.Del(ctx, lockKey(requestID)).Err()
}

// RefreshLock extends the TTL of a processing lock.
func (c *Client) RefreshLock(ctx context.Context, requestID string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, lockKey(requestID), ttl).Err()
}
