package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// ConnectConfig holds redis connection settings for the cache backend.
type ConnectConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	MaxElapsed  time.Duration
}

// Connect dials the cache backend once at startup, retrying with exponential
// backoff up to MaxElapsed. On exhaustion it returns nil: the gateway then
// runs uncached rather than refusing to start. Never re-dial per request;
// the returned client is shared for the process lifetime.
func Connect(ctx context.Context, cfg ConnectConfig, logger *slog.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 30 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = cfg.MaxElapsed

	err := backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("cache backend not reachable, retrying", "addr", cfg.Addr, "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		logger.Warn("cache backend unreachable, running uncached", "addr", cfg.Addr, "error", err)
		rdb.Close()
		return nil
	}

	logger.Info("cache backend connected", "addr", cfg.Addr)
	return rdb
}
