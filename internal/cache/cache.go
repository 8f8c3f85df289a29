// Package cache keeps public GET responses in Redis.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss reports a key that is not cached.
var ErrMiss = errors.New("cache: miss")

// Store is the key space the middleware needs. Keys are grouped so one
// mutation can drop every cached read of a resource.
type Store interface {
	Get(ctx context.Context, group, key string) ([]byte, error)
	Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, group string) error
}

const keyPrefix = "resp"

// RedisStore implements Store on go-redis.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.Cmdable) *RedisStore { return &RedisStore{rdb: rdb} }

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Key hashes key so arbitrary query strings stay short and safe.
func Key(group, key string) string {
	sum := sha1.Sum([]byte(key))
	return keyPrefix + ":" + group + ":" + hex.EncodeToString(sum[:])
}

func (s *RedisStore) Get(ctx context.Context, group, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, Key(group, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error {
	return s.rdb.SetEx(ctx, Key(group, key), value, ttl).Err()
}

// InvalidatePrefix deletes every key of group.
func (s *RedisStore) InvalidatePrefix(ctx context.Context, group string) error {
	match := keyPrefix + ":" + group + ":*"
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
