package main

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/wondr/rembg/internal/config"
	"github.com/wondr/rembg/internal/database"
	"go.uber.org/zap"
)

// redisConn dials Redis on first use so deployments that need neither the
// Redis ledger nor the refund queue never connect.
type redisConn struct {
	cfg    config.RedisConfig
	log    *zap.Logger
	client *redis.Client
}

func lazyRedis(cfg config.RedisConfig, log *zap.Logger) *redisConn {
	return &redisConn{cfg: cfg, log: log}
}

func (r *redisConn) get(ctx context.Context) (*redis.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	client, err := database.InitRedis(ctx, r.cfg, r.log)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *redisConn) close() {
	if r.client != nil {
		r.client.Close()
	}
}
