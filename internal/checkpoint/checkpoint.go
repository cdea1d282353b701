// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	BackendNone   = "none"
	BackendBadger = "badger"
	BackendRedis  = "redis"

	defaultRedisPrefix = "transfer:checkpoint:"
)

var (
	// ErrCheckpoint wraps errors emitted by checkpoint stores.
	ErrCheckpoint = errors.New("checkpoint store")
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
	// ErrUnknownBackend reports an unsupported CHECKPOINT_BACKEND value.
	ErrUnknownBackend = errors.New("unknown checkpoint backend")
)

// Store keeps the last resume token of every transfer, keyed by transfer name.
type Store interface {
	// Load returns the stored token of name, or an empty string if none is stored.
	Load(ctx context.Context, name string) (string, error)
	// Save stores token for name; an empty token removes the checkpoint.
	Save(ctx context.Context, name, token string) error
	// Close releases the store resources.
	Close() error
}

type envConfig struct {
	Backend     string `env:"CHECKPOINT_BACKEND" envDefault:"none"`
	Path        string `env:"CHECKPOINT_PATH"`
	RedisAddr   string `env:"CHECKPOINT_REDIS_ADDR"`
	RedisPrefix string `env:"CHECKPOINT_REDIS_PREFIX" envDefault:"transfer:checkpoint:"`
}

func (c envConfig) validate() error {
	switch c.Backend {
	case BackendNone:
	case BackendBadger:
		if c.Path == "" {
			return fmt.Errorf("%w: CHECKPOINT_PATH", ErrMissingEnvVariable)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: CHECKPOINT_REDIS_ADDR", ErrMissingEnvVariable)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	return nil
}

// NewStoreFromEnv returns the Store selected by CHECKPOINT_BACKEND.
func NewStoreFromEnv() (Store, error) {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, handleError(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, handleError(err)
	}

	switch cfg.Backend {
	case BackendBadger:
		return NewBadgerStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return NopStore(), nil
	}
}

type nopStore struct{}

// NopStore returns a Store that never remembers anything.
func NopStore() Store {
	return nopStore{}
}

func (nopStore) Load(context.Context, string) (string, error) { return "", nil }
func (nopStore) Save(context.Context, string, string) error   { return nil }
func (nopStore) Close() error                                 { return nil }

func handleError(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrCheckpoint, err)
}
