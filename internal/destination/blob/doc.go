// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package blob implements a destination writing every batch as a JSON Lines blob inside an Azure
// Blob Storage container. Blob names are KSUIDs, so listing a container returns the batches in the
// order they were written.
package blob
