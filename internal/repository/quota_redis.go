package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Keys outlive their day so a late-timezone caller still sees yesterday's row.
const redisQuotaTTL = 48 * time.Hour

type RedisQuotaRepository struct {
	client redis.UniversalClient
	log    *zap.Logger
}

func NewRedisQuotaRepository(client redis.UniversalClient, log *zap.Logger) *RedisQuotaRepository {
	return &RedisQuotaRepository{client: client, log: log}
}

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func quotaRedisKey(identity, day string) string {
	return "lgtm:quota:" + identity + ":" + day
}

func (r *RedisQuotaRepository) Count(ctx context.Context, identity, day string) (int, error) {
	n, err := r.client.Get(ctx, quotaRedisKey(identity, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get upload count: %w", err)
	}
	return n, nil
}

func (r *RedisQuotaRepository) Increment(ctx context.Context, identity, day string) (int, error) {
	key := quotaRedisKey(identity, day)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, redisQuotaTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment upload count: %w", err)
	}

	r.log.Debug("Upload count incremented",
		zap.String("identity", identity),
		zap.String("day", day),
		zap.Int64("count", incr.Val()))

	return int(incr.Val()), nil
}

func (r *RedisQuotaRepository) Close() error {
	return r.client.Close()
}
