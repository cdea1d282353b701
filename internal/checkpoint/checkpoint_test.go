// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package checkpoint

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	t.Parallel()

	testCases := map[string]func(t *testing.T) Store{
		"badger in memory": func(t *testing.T) Store {
			t.Helper()
			store, err := NewBadgerStore("")
			require.NoError(t, err)
			return store
		},
		"badger on disk": func(t *testing.T) Store {
			t.Helper()
			store, err := NewBadgerStore(t.TempDir())
			require.NoError(t, err)
			return store
		},
		"redis": func(t *testing.T) Store {
			t.Helper()
			srv := miniredis.RunT(t)
			store, err := NewRedisStore(srv.Addr(), "")
			require.NoError(t, err)
			return store
		},
	}

	for testName, newStore := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			store := newStore(t)
			defer func() { assert.NoError(t, store.Close()) }()

			token, err := store.Load(ctx, "inventory")
			require.NoError(t, err)
			assert.Empty(t, token)

			require.NoError(t, store.Save(ctx, "inventory", "page-2"))
			require.NoError(t, store.Save(ctx, "repositories", "0:abc"))
			require.NoError(t, store.Save(ctx, "inventory", "page-3"))

			token, err = store.Load(ctx, "inventory")
			require.NoError(t, err)
			assert.Equal(t, "page-3", token)

			token, err = store.Load(ctx, "repositories")
			require.NoError(t, err)
			assert.Equal(t, "0:abc", token)

			require.NoError(t, store.Save(ctx, "inventory", ""))
			token, err = store.Load(ctx, "inventory")
			require.NoError(t, err)
			assert.Empty(t, token)

			require.NoError(t, store.Save(ctx, "never-saved", ""))
		})
	}
}

func TestBadgerStorePersists(t *testing.T) {
	t.Parallel()

	path := t.TempDir()
	store, err := NewBadgerStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(t.Context(), "inventory", "42"))
	require.NoError(t, store.Close())

	store, err = NewBadgerStore(path)
	require.NoError(t, err)
	defer func() { assert.NoError(t, store.Close()) }()

	token, err := store.Load(t.Context(), "inventory")
	require.NoError(t, err)
	assert.Equal(t, "42", token)
}

func TestRedisStorePrefix(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	store, err := NewRedisStore(srv.Addr(), "jobs:")
	require.NoError(t, err)
	defer func() { assert.NoError(t, store.Close()) }()

	require.NoError(t, store.Save(t.Context(), "inventory", "next"))
	value, err := srv.Get("jobs:inventory")
	require.NoError(t, err)
	assert.Equal(t, "next", value)
}

func TestRedisStoreErrors(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	store, err := NewRedisStore(srv.Addr(), "")
	require.NoError(t, err)
	defer store.Close()

	srv.SetError("READONLY")
	_, err = store.Load(t.Context(), "inventory")
	assert.ErrorIs(t, err, ErrCheckpoint)
}

func TestNewStoreFromEnv(t *testing.T) {
	testCases := map[string]struct {
		env          map[string]string
		expectedErr  error
		expectedType Store
	}{
		"default is none": {
			expectedType: nopStore{},
		},
		"badger": {
			env:          map[string]string{"CHECKPOINT_BACKEND": "badger", "CHECKPOINT_PATH": "tempdir"},
			expectedType: &BadgerStore{},
		},
		"badger without path": {
			env:         map[string]string{"CHECKPOINT_BACKEND": "badger"},
			expectedErr: ErrMissingEnvVariable,
		},
		"redis": {
			env:          map[string]string{"CHECKPOINT_BACKEND": "redis", "CHECKPOINT_REDIS_ADDR": "localhost:6379"},
			expectedType: &RedisStore{},
		},
		"redis without address": {
			env:         map[string]string{"CHECKPOINT_BACKEND": "redis"},
			expectedErr: ErrMissingEnvVariable,
		},
		"unknown backend": {
			env:         map[string]string{"CHECKPOINT_BACKEND": "etcd"},
			expectedErr: ErrUnknownBackend,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			for _, key := range []string{"CHECKPOINT_BACKEND", "CHECKPOINT_PATH", "CHECKPOINT_REDIS_ADDR"} {
				value := test.env[key]
				if key == "CHECKPOINT_PATH" && value != "" {
					value = t.TempDir()
				}
				t.Setenv(key, value)
			}
			if test.env["CHECKPOINT_BACKEND"] == "" {
				t.Setenv("CHECKPOINT_BACKEND", BackendNone)
			}

			store, err := NewStoreFromEnv()
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				assert.ErrorIs(t, err, ErrCheckpoint)
				return
			}

			require.NoError(t, err)
			defer func() { assert.NoError(t, store.Close()) }()
			assert.IsType(t, test.expectedType, store)

			token, err := store.Load(t.Context(), "inventory")
			require.NoError(t, err)
			assert.Empty(t, token)
		})
	}
}
