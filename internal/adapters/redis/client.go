package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// NewClient connects to the configured Redis server and verifies it with PING.
// The returned cleanup closes the client.
func NewClient(ctx context.Context, cfgProvider config.Provider, logger domain.Logger) (*redis.Client, func(), error) {
	redisCfg := cfgProvider.Get().Redis
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Address,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error(ctx, "Failed to connect to Redis", "address", redisCfg.Address, "error", err.Error())
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", redisCfg.Address, err)
	}
	logger.Info(ctx, "Successfully connected to Redis", "address", redisCfg.Address)

	cleanup := func() {
		logger.Info(context.Background(), "Closing Redis client...")
		if err := client.Close(); err != nil {
			logger.Error(context.Background(), "Error closing Redis client", "error", err.Error())
		}
	}
	return client, cleanup, nil
}
