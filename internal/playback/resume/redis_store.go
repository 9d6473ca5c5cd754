// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mediaplayer:resume:"

// RedisConfig holds the redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL is applied to every written key. Zero keeps keys forever.
	TTL time.Duration
}

// RedisStore implements Store on redis, one JSON value per media URL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redis and checks the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("resume store: redis connection failed: %w", err)
	}
	return newRedisStore(client, cfg.TTL), nil
}

func newRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(mediaURL string) string {
	return redisKeyPrefix + mediaURL
}

func (s *RedisStore) Put(ctx context.Context, mediaURL string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode resume state: %w", err)
	}
	return s.client.Set(ctx, redisKey(mediaURL), data, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, mediaURL string) (*State, error) {
	data, err := s.client.Get(ctx, redisKey(mediaURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode resume state: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Delete(ctx context.Context, mediaURL string) error {
	return s.client.Del(ctx, redisKey(mediaURL)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
