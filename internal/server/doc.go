// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package server contains the HTTP server used by the serve command.
// It sets up a Fiber application with request logging, health and readiness probes, and lets
// callers register JSON routes.
package server
