// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package destination defines the primitives used to implement transfer data destinations.
// Every destination is a Sender; destinations able to deliver a batch in one call also implement
// BatchSender, and the ones owning remote resources implement Installer for the setup workflow.
package destination
