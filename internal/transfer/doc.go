// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package transfer implements a resumable extract, transform and load engine.
// A Transfer binds a loader handle, a writer handle and a transform function; every Process created
// from it repeatedly loads a page of records, filters and transforms them, and writes them in batches,
// threading an opaque resume token between cycles until the load function returns the zero token.
// Processes run strictly sequentially: one load, one transform and one write call at a time.
package transfer
