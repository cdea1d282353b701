// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package writer implements a destination that prints the received sent and deleted data to the
// given io.Writer instance.
// It backs the --local-output flag, useful for tweaking and adjusting the mapping outputs before
// writing them to a real destination.
package writer
