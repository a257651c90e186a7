package httpcache

import (
	"context"

	"github.com/brizzai/postman/internal/config"
	"github.com/brizzai/postman/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// StoreParams holds the parameters for creating the configured Store
type StoreParams struct {
	fx.In

	Config    *config.Config
	Lifecycle fx.Lifecycle
}

// NewStoreFromConfig returns the configured Store, or nil when caching is disabled
func NewStoreFromConfig(params StoreParams) Store {
	cfg := params.Config.Cache
	if !cfg.Enabled {
		logger.Info("HTTP response cache disabled")
		return nil
	}

	switch cfg.Backend {
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		params.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					// The transport treats store errors as misses, so a missing
					// redis degrades to uncached requests.
					logger.Warn("Redis cache unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		logger.Info("HTTP response cache enabled",
			zap.String("backend", string(cfg.Backend)),
			zap.String("addr", cfg.Redis.Addr),
		)
		return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	default:
		logger.Info("HTTP response cache enabled",
			zap.String("backend", string(config.CacheBackendMemory)),
			zap.Int("max_entries", cfg.MaxEntries),
		)
		return NewMemoryStore(cfg.MaxEntries)
	}
}

// Module provides the response cache store
var Module = fx.Module("httpcache",
	fx.Provide(
		NewStoreFromConfig,
	),
)
