package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "conv:"
	redisStateTTL  = 24 * time.Hour
)

// RedisStore persists conversation state in Redis so dialogs survive
// restarts and work across bot instances. Abandoned conversations fall
// out after the TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the given redis:// URL and verifies it.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func redisKey(chatID int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, chatID)
}

func (r *RedisStore) Get(ctx context.Context, chatID int64) (*State, error) {
	raw, err := r.client.Get(ctx, redisKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	st := &State{}
	if err := json.Unmarshal(raw, st); err != nil {
		// Corrupt state is unrecoverable; drop it instead of wedging
		// the chat.
		_ = r.client.Del(ctx, redisKey(chatID)).Err()
		return nil, nil
	}
	return st, nil
}

func (r *RedisStore) Set(ctx context.Context, chatID int64, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(chatID), raw, redisStateTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, redisKey(chatID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
