// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transfer

const (
	// DefaultBatchWrite is the number of transformed records handed to a single write call when
	// Options.BatchWrite is not set.
	DefaultBatchWrite = 1
)

// Options holds the per process settings passed to every hook.
type Options struct {
	// BatchWrite splits the transformed records of a cycle in groups of this size for writing.
	BatchWrite int
	// Trace is an opaque correlation id attached to every progress event of a run.
	Trace string
}

// batchSize returns the effective write batch size.
func (o Options) batchSize() int {
	if o.BatchWrite < 1 {
		return DefaultBatchWrite
	}

	return o.BatchWrite
}
