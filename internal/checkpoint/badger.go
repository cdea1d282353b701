// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package checkpoint

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

var _ Store = &BadgerStore{}

// BadgerStore keeps checkpoints in a local badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens the badger database in path; an empty path keeps it in memory.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, handleError(err)
	}

	return &BadgerStore{db: db}, nil
}

// Load implements Store.
func (s *BadgerStore) Load(_ context.Context, name string) (string, error) {
	var token string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}

		value, err := item.ValueCopy(nil)
		token = string(value)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	return token, handleError(err)
}

// Save implements Store.
func (s *BadgerStore) Save(_ context.Context, name, token string) error {
	return handleError(s.db.Update(func(txn *badger.Txn) error {
		if token == "" {
			return txn.Delete([]byte(name))
		}
		return txn.Set([]byte(name), []byte(token))
	}))
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return handleError(s.db.Close())
}
