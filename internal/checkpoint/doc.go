// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package checkpoint persists the resume token of every transfer between runs, so that an
// interrupted run can restart from the last page that was completely written.
//
// Stores are used by the pipeline layer only: the transfer engine keeps its resume token in memory
// for the length of a single run and knows nothing about persistence.
package checkpoint
