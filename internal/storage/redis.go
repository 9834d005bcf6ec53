package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore represents a store shared between processes through Redis.
// Keys are namespaced by prefix so several registries can share one database.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisOptions holds the connection settings for NewRedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore creates a new store backed by a dedicated Redis client
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisStoreWithClient creates a new store on an existing client
func NewRedisStoreWithClient(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Put stores value under key
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// PutIfAbsent stores value under key with SETNX
func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	stored, err := s.client.SetNX(ctx, s.key(key), value, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store %s: %w", key, err)
	}
	return stored, nil
}

// Get returns the value stored under key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, nil
}

// Has reports whether key is present
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return n > 0, nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Clear removes every key under the prefix
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Len returns the number of keys under the prefix
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s*: %w", s.prefix, err)
	}
	return keys, nil
}
