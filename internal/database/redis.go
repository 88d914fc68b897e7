package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/wondr/rembg/internal/config"
	"go.uber.org/zap"
)

func RedisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// InitRedis connects to Redis. Unlike a cache, the ledger and refund queue
// cannot run without it, so a failed ping is an error.
func InitRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(RedisOptions(cfg))

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("error connecting to redis at %s: %w", cfg.Addr(), err)
	}

	log.Info("[REDIS] connection established", zap.String("addr", cfg.Addr()))
	return rdb, nil
}
