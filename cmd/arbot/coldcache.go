package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/cryptoarb/arbot/internal/config"
	"github.com/cryptoarb/arbot/internal/marketstate"
	"github.com/cryptoarb/arbot/internal/metrics"
)

// buildColdCache connects to Redis and starts the background worker that
// durably mirrors order-book snapshots for dashboards and restart
// recovery. A Redis outage at startup degrades to no cold cache rather
// than failing the engine, matching how a missing Postgres DSN degrades
// to no durable persistence.
func buildColdCache(ctx context.Context, cfg *config.RedisConfig) *marketstate.ColdCache {
	if cfg.Host == "" {
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without cold-path market snapshot cache")
		_ = client.Close()
		return nil
	}

	cache := marketstate.NewColdCache(metrics.NewRedisMetrics(client), 30*time.Second)
	go cache.Run(ctx)
	return cache
}
