// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package info holds application version information.
package info

import "runtime"

var (
	// AppName is the name of the application.
	AppName = "transfer"
	// Version is dynamically set by the ci or overridden by the Makefile.
	Version = "DEV"
	// BuildDate is dynamically set at build time by the cli or overridden in the Makefile.
	BuildDate = "" // YYYY-MM-DD
)

// ServiceVersionInformation returns the version, the build date when known and the Go runtime
// version in a single line.
func ServiceVersionInformation() string {
	output := Version
	if BuildDate != "" {
		output += " (" + BuildDate + ")"
	}

	return output + ", Go Version: " + runtime.Version()
}
