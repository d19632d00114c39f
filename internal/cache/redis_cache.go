package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/config"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
)

type RedisRecentCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRecentCache(cfg config.RedisConfig, prefix string) (*RedisRecentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRecentCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisRecentCache) BuildKey(limit int) string {
	return fmt.Sprintf("%s:%d", c.prefix, limit)
}

func (c *RedisRecentCache) Get(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var messages []domain.ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return messages, nil
}

func (c *RedisRecentCache) Set(ctx context.Context, key string, messages []domain.ChatMessage, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisRecentCache) Invalidate(ctx context.Context) error {
	keys, err := c.client.Keys(ctx, c.prefix+":*").Result()
	if err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

func (c *RedisRecentCache) Close() error {
	return c.client.Close()
}
