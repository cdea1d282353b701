// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transfer

import (
	"context"
)

// TransformFunc converts a loaded record into a record ready to be written.
type TransformFunc[LD, WD any] func(ctx context.Context, row LD) (WD, error)

// FilterFunc reports if a loaded record must be kept.
type FilterFunc[LD any] func(ctx context.Context, row LD) (bool, error)

// LoadResult is the outcome of a single load call. A zero ResumeToken means that no more data is
// available and the current cycle is the last one.
type LoadResult[LD any, R comparable] struct {
	Rows        []LD
	ResumeToken R
}

// LoadFunc fetches the next page of records from loader starting at resumeToken.
type LoadFunc[LD any, L any, R comparable] func(ctx context.Context, loader L, resumeToken R, opts Options) (LoadResult[LD, R], error)

// WriteFunc writes a single batch of records to writer.
type WriteFunc[WD, W any] func(ctx context.Context, writer W, batch []WD, opts Options) error

// BeforeRunFunc is called once before the first cycle and returns the initial resume token.
type BeforeRunFunc[L, W any, R comparable] func(ctx context.Context, loader L, writer W) (R, error)

// BeforeWriteFunc is called after the transform step of every cycle. A non zero returned token
// replaces the one obtained from the load call.
type BeforeWriteFunc[WD any, R comparable] func(ctx context.Context, opts Options, resumeToken R, rows []WD) (R, error)

// Transfer binds a loader handle, a writer handle and a transform function. It is immutable and
// can be shared by any number of processes.
type Transfer[LD, WD, L, W any] struct {
	loader    L
	writer    W
	transform TransformFunc[LD, WD]
}

// New returns a new Transfer; no validation is done on the arguments.
func New[LD, WD, L, W any](loader L, writer W, transform TransformFunc[LD, WD]) *Transfer[LD, WD, L, W] {
	return &Transfer[LD, WD, L, W]{
		loader:    loader,
		writer:    writer,
		transform: transform,
	}
}

// Loader returns the loader handle.
func (t *Transfer[LD, WD, L, W]) Loader() L {
	return t.loader
}

// Writer returns the writer handle.
func (t *Transfer[LD, WD, L, W]) Writer() W {
	return t.writer
}
