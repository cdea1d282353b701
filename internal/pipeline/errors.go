// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrPipeline wraps errors raised while assembling a pipeline.
	ErrPipeline = errors.New("pipeline")
	// ErrAlreadyRunning is returned by Sync while another run of the same pipeline is in flight.
	ErrAlreadyRunning = errors.New("pipeline already running")
	// ErrCheckpoint wraps errors raised by the checkpoint store during a run.
	ErrCheckpoint = errors.New("pipeline checkpoint")
)

// unsupportedTypeError signals a source or destination type that no implementation handles.
type unsupportedTypeError struct {
	Kind string
	Type string
}

func (e *unsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported %s type %q", e.Kind, e.Type)
}

func (e *unsupportedTypeError) Unwrap() error {
	return errors.ErrUnsupported
}
