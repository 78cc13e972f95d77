package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/rediskeys"
)

// UserStoreAdapter implements domain.UserStore on Redis. Each record is a JSON
// string under rediskeys.UserCacheKey and its id is kept in the index set so the
// whole cache can be listed without SCAN.
type UserStoreAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

func NewUserStoreAdapter(redisClient *redis.Client, logger domain.Logger) *UserStoreAdapter {
	if redisClient == nil {
		panic("redisClient cannot be nil in NewUserStoreAdapter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewUserStoreAdapter")
	}
	return &UserStoreAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (a *UserStoreAdapter) RetrieveUser(ctx context.Context, userID int) (*domain.CachedUser, error) {
	key := rediskeys.UserCacheKey(userID)
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		a.logger.Error(ctx, "Failed to get cached user from Redis", "key", key, "error", err.Error())
		return nil, fmt.Errorf("redis GET for user cache key '%s' failed: %w", key, err)
	}

	var user domain.CachedUser
	if err := json.Unmarshal([]byte(val), &user); err != nil {
		a.logger.Error(ctx, "Failed to unmarshal cached user", "key", key, "error", err.Error())
		return nil, fmt.Errorf("failed to unmarshal cached user for key '%s': %w", key, err)
	}
	return &user, nil
}

func (a *UserStoreAdapter) RetrieveAllUsers(ctx context.Context) ([]domain.CachedUser, error) {
	indexKey := rediskeys.UserCacheIndexKey()
	ids, err := a.redisClient.SMembers(ctx, indexKey).Result()
	if err != nil {
		a.logger.Error(ctx, "Failed to list cached user ids", "key", indexKey, "error", err.Error())
		return nil, fmt.Errorf("redis SMEMBERS for '%s' failed: %w", indexKey, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("user cache index holds non-numeric id %q: %w", raw, err)
		}
		keys = append(keys, rediskeys.UserCacheKey(id))
	}

	vals, err := a.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		a.logger.Error(ctx, "Failed to read cached users", "count", len(keys), "error", err.Error())
		return nil, fmt.Errorf("redis MGET for %d user cache keys failed: %w", len(keys), err)
	}

	users := make([]domain.CachedUser, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Indexed id whose record is gone; it is dropped on the next delete.
			continue
		}
		var user domain.CachedUser
		if err := json.Unmarshal([]byte(s), &user); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cached user for key '%s': %w", keys[i], err)
		}
		users = append(users, user)
	}
	return users, nil
}

func (a *UserStoreAdapter) InsertUser(ctx context.Context, user domain.CachedUser, timestamp time.Time) error {
	ts := timestamp
	user.InsertedAt = &ts
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal cached user %d: %w", user.ID, err)
	}

	key := rediskeys.UserCacheKey(user.ID)
	pipe := a.redisClient.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.SAdd(ctx, rediskeys.UserCacheIndexKey(), user.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Error(ctx, "Failed to insert cached user", "key", key, "error", err.Error())
		return fmt.Errorf("redis SET/SADD for user cache key '%s' failed: %w", key, err)
	}
	return nil
}

func (a *UserStoreAdapter) DeleteUsers(ctx context.Context, users []domain.CachedUser) error {
	if len(users) == 0 {
		return nil
	}
	keys := make([]string, 0, len(users))
	members := make([]any, 0, len(users))
	for _, u := range users {
		keys = append(keys, rediskeys.UserCacheKey(u.ID))
		members = append(members, u.ID)
	}

	pipe := a.redisClient.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, rediskeys.UserCacheIndexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Error(ctx, "Failed to delete cached users", "count", len(keys), "error", err.Error())
		return fmt.Errorf("redis DEL/SREM for %d user cache keys failed: %w", len(keys), err)
	}
	return nil
}

func (a *UserStoreAdapter) ClearUsers(ctx context.Context) error {
	indexKey := rediskeys.UserCacheIndexKey()
	ids, err := a.redisClient.SMembers(ctx, indexKey).Result()
	if err != nil {
		a.logger.Error(ctx, "Failed to list cached user ids for clear", "key", indexKey, "error", err.Error())
		return fmt.Errorf("redis SMEMBERS for '%s' failed: %w", indexKey, err)
	}

	keys := []string{indexKey}
	for _, raw := range ids {
		if id, err := strconv.Atoi(raw); err == nil {
			keys = append(keys, rediskeys.UserCacheKey(id))
		}
	}
	if err := a.redisClient.Del(ctx, keys...).Err(); err != nil {
		a.logger.Error(ctx, "Failed to clear user cache", "count", len(keys), "error", err.Error())
		return fmt.Errorf("redis DEL for user cache failed: %w", err)
	}
	a.logger.Info(ctx, "User cache cleared", "records", len(ids))
	return nil
}
