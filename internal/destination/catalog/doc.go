// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package catalog implements the Mia-Platform Catalog destination.
// The Catalog destination allows sending data to the Mia-Platform Catalog service,
// which is used for managing and storing data in a structured way.
package catalog
