// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package destination

import (
	"context"
	"encoding/json"
)

// Sender delivers resource mutations to a destination, supporting upsert and delete flows.
type Sender interface {
	SendData(ctx context.Context, data *Data) error
	DeleteData(ctx context.Context, data *Data) error
}

// BatchSender is implemented by destinations that deliver a whole batch at once. The batch can mix
// upserts and deletions, told apart by a nil Data map.
type BatchSender interface {
	Sender
	SendBatch(ctx context.Context, batch []*Data) error
}

// Installer is implemented by destinations that need resources provisioned before the first write.
// Both hooks report whether the operation succeeded and a human readable log of what they did.
type Installer interface {
	Install(ctx context.Context) (bool, []string, error)
	Uninstall(ctx context.Context) (bool, []string, error)
}

// ClosableSender is implemented by destinations holding clients that must be released.
type ClosableSender interface {
	Sender
	Close(ctx context.Context) error
}

// Data bundles the resource metadata and payload shipped to a destination.
type Data struct {
	APIVersion    string         `json:"apiVersion"`
	ItemFamily    string         `json:"itemFamily"`
	Name          string         `json:"name"`
	Data          map[string]any `json:"data,omitempty"`
	OperationTime string         `json:"operationTime,omitempty"`
}

// IsDelete reports whether d describes a deletion.
func (d Data) IsDelete() bool {
	return d.Data == nil
}

// internalData breaks the recursion when customizing JSON marshaling.
type internalData Data

// MarshalJSON labels the payload with the operation derived from the data content.
func (d Data) MarshalJSON() ([]byte, error) {
	operation := "upsert"
	if d.IsDelete() {
		operation = "delete"
	}

	return json.Marshal(struct {
		internalData

		Operation string `json:"operation"`
	}{
		internalData: internalData(d),
		Operation:    operation,
	})
}
