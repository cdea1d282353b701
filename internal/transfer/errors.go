// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a process started without a required function.
	ErrConfiguration = errors.New("transfer configuration error")
	// ErrSource wraps failures returned by the load function.
	ErrSource = errors.New("transfer source error")
	// ErrTransform wraps failures returned by the filter or transform functions.
	ErrTransform = errors.New("transfer transform error")
	// ErrSink wraps failures returned by the write function.
	ErrSink = errors.New("transfer sink error")
	// ErrHook wraps failures returned by the before run and before write hooks.
	ErrHook = errors.New("transfer hook error")
	// ErrAlreadyStarted is returned by Start on a process that already ran.
	ErrAlreadyStarted = errors.New("transfer process already started")

	errMissingLoad  = fmt.Errorf("%w: before run, define a load function", ErrConfiguration)
	errMissingWrite = fmt.Errorf("%w: before run, define a write function", ErrConfiguration)
)

// wrap labels err with the sentinel of the phase that produced it, keeping the original error
// reachable through errors.Is and errors.As.
func wrap(sentinel, err error) error {
	return fmt.Errorf("%w: %w", sentinel, err)
}
