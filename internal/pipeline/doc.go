// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package pipeline binds a paged source, a set of typed mappers and a destination into a resumable
// transfer. Every Sync call runs a new transfer process that loads pages until the source reports no
// more data, maps every record and writes the results in batches.
package pipeline
