package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cart:"

// RedisSlot stores slot values under cart:<namespace>:<key> with no expiry.
type RedisSlot struct {
	client    *redis.Client
	namespace string
}

func NewRedisSlot(client *redis.Client, namespace string) *RedisSlot {
	return &RedisSlot{client: client, namespace: namespace}
}

func (s *RedisSlot) Read(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return v, true, nil
}

func (s *RedisSlot) Write(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisSlot) redisKey(key string) string {
	return redisKeyPrefix + s.namespace + ":" + key
}

// RedisSlots shares one client across all shoppers.
type RedisSlots struct {
	Client *redis.Client
}

func (r RedisSlots) For(shopperID string) Slot {
	return NewRedisSlot(r.Client, shopperID)
}

func (r RedisSlots) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
