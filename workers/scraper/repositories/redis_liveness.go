package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

const (
	DefaultLivenessTTL = 2 * time.Minute
	DefaultQueuedTTL   = 24 * time.Hour
)

// LivenessOracle answers whether a job is still queued or running.
type LivenessOracle interface {
	MarkQueued(ctx context.Context, jobID string) error
	Heartbeat(ctx context.Context, jobID string) error
	Clear(ctx context.Context, jobID string) error
	IsAlive(ctx context.Context, jobID string) (bool, error)
}

// RedisLiveness keeps one expiring key per job. A job whose key has expired, or
// was never written, is not alive.
type RedisLiveness struct {
	client    *redis.Client
	ttl       time.Duration
	queuedTTL time.Duration
}

func NewRedisClient(host, port string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port),
	})
}

func NewRedisLiveness(client *redis.Client, ttl, queuedTTL time.Duration) *RedisLiveness {
	if ttl <= 0 {
		ttl = DefaultLivenessTTL
	}
	if queuedTTL <= 0 {
		queuedTTL = DefaultQueuedTTL
	}
	return &RedisLiveness{client: client, ttl: ttl, queuedTTL: queuedTTL}
}

// TTL is the lifetime of a heartbeat.
func (r *RedisLiveness) TTL() time.Duration {
	return r.ttl
}

func livenessKey(jobID string) string {
	return fmt.Sprintf(domain.RedisKeyJobLiveness, jobID)
}

func (r *RedisLiveness) MarkQueued(ctx context.Context, jobID string) error {
	if err := r.client.Set(ctx, livenessKey(jobID), domain.LivenessQueued, r.queuedTTL).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}

func (r *RedisLiveness) Heartbeat(ctx context.Context, jobID string) error {
	if err := r.client.Set(ctx, livenessKey(jobID), domain.LivenessStarted, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}

func (r *RedisLiveness) Clear(ctx context.Context, jobID string) error {
	if err := r.client.Del(ctx, livenessKey(jobID)).Err(); err != nil {
		return fmt.Errorf("redis del failure: %w", err)
	}
	return nil
}

func (r *RedisLiveness) IsAlive(ctx context.Context, jobID string) (bool, error) {
	val, err := r.client.Get(ctx, livenessKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failure: %w", err)
	}
	return val == domain.LivenessQueued || val == domain.LivenessStarted, nil
}
