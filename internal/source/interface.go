// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package source

import (
	"context"
	"time"
)

// Page is a slice of records returned by a single Load call.
type Page struct {
	// Data holds the records of the page in source order.
	Data []Data
	// ResumeToken is the opaque value to pass to the next Load call; an empty token means that no
	// more records are available.
	ResumeToken string
}

// Loader defines the interface for a data source that can be read one page at a time.
type Loader interface {
	// Load returns the page of records starting at resumeToken. An empty resumeToken requests the
	// first page.
	Load(ctx context.Context, resumeToken string) (*Page, error)
}

// ClosableSource defines the interface for sources that hold clients or files that must be released
// once the transfer is over.
type ClosableSource interface {
	// Close releases the resources held by the source, waiting at most timeout.
	Close(ctx context.Context, timeout time.Duration) error
}
