package redisinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/go-auth-otp/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection with a PING.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.CallTimeout,
		ReadTimeout:  cfg.CallTimeout,
		WriteTimeout: cfg.CallTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// ttlUntil returns the key lifetime needed to keep a record until t, plus a
// grace period so readers observe the expiry themselves rather than a miss.
func ttlUntil(now, t time.Time) time.Duration {
	const grace = time.Minute
	d := t.Sub(now) + grace
	if d < grace {
		return grace
	}
	return d
}
