// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package registry keeps the models a transfer writes to, grouped by tags, and provisions or removes
// them through their install and uninstall hooks.
package registry
