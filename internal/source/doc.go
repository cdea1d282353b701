// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package source defines the contracts shared by every transfer data source.
// Sources are read one page at a time through the Loader interface; the resume token of a page
// points to the next one and is opaque to everything but the source that produced it.
package source
