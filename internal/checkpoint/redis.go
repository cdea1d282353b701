// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package checkpoint

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

var _ Store = &RedisStore{}

// RedisStore keeps checkpoints in redis, one string key per transfer.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a RedisStore connected to addr; every key starts with prefix.
func NewRedisStore(addr, prefix string) (*RedisStore, error) {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}, nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, name string) (string, error) {
	token, err := s.client.Get(ctx, s.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, handleError(err)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, name, token string) error {
	if token == "" {
		return handleError(s.client.Del(ctx, s.prefix+name).Err())
	}
	return handleError(s.client.Set(ctx, s.prefix+name, token, 0).Err())
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return handleError(s.client.Close())
}
