// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mia-platform/transfer/internal/destination"
)

var _ destination.Sender = &writerDestination{}

type writerDestination struct {
	writer io.Writer

	lock sync.Mutex
}

// NewDestination returns a destination.Sender printing every record to w.
func NewDestination(w io.Writer) destination.Sender {
	return &writerDestination{
		writer: w,
	}
}

func (d *writerDestination) SendData(_ context.Context, data *destination.Data) error {
	builder := new(strings.Builder)

	builder.WriteString("Send data:\n")
	writeHeader(builder, data)
	builder.WriteString("\tSpec: ")

	encoder := json.NewEncoder(builder)
	encoder.SetIndent("\t", "\t")
	if err := encoder.Encode(data.Data); err != nil {
		return err
	}
	builder.WriteString("\n")

	return d.write(builder.String())
}

func (d *writerDestination) DeleteData(_ context.Context, data *destination.Data) error {
	builder := new(strings.Builder)
	builder.WriteString("Delete data:\n")
	writeHeader(builder, data)
	builder.WriteString("\n")

	return d.write(builder.String())
}

func writeHeader(builder *strings.Builder, data *destination.Data) {
	builder.WriteString("\tAPIVersion: " + data.APIVersion + "\n")
	builder.WriteString("\tItem Family: " + data.ItemFamily + "\n")
	builder.WriteString("\tResource Name: " + data.Name + "\n")
	if data.OperationTime != "" {
		builder.WriteString("\tOperation Time: " + data.OperationTime + "\n")
	}
}

func (d *writerDestination) write(output string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	_, err := fmt.Fprint(d.writer, output)
	return err
}
