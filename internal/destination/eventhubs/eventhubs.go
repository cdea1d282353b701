// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package eventhubs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs/v2"
	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/logger"
)

const (
	loggerName = "transfer:destination:eventhubs"

	contentType = "application/json"
)

var (
	// ErrEventHubsDestination wraps errors emitted by the Event Hubs destination.
	ErrEventHubsDestination = errors.New("eventhubs destination")
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
	// ErrInvalidEnvVariable reports malformed environment variable values.
	ErrInvalidEnvVariable = errors.New("invalid environment value")
)

var _ destination.BatchSender = &Destination{}
var _ destination.ClosableSender = &Destination{}

// eventBatch is the subset of azeventhubs.EventDataBatch used to fill batches.
type eventBatch interface {
	AddEventData(eventData *azeventhubs.EventData, options *azeventhubs.AddEventDataOptions) error
	NumEvents() int32
}

type eventProducer interface {
	newBatch(ctx context.Context) (eventBatch, error)
	send(ctx context.Context, batch eventBatch) error
	Close(ctx context.Context) error
}

// producerClient adapts azeventhubs.ProducerClient to eventProducer.
type producerClient struct {
	*azeventhubs.ProducerClient
}

func (p producerClient) newBatch(ctx context.Context) (eventBatch, error) {
	return p.NewEventDataBatch(ctx, nil)
}

func (p producerClient) send(ctx context.Context, batch eventBatch) error {
	eventDataBatch, ok := batch.(*azeventhubs.EventDataBatch)
	if !ok {
		return fmt.Errorf("unexpected batch of type %T", batch)
	}
	return p.SendEventDataBatch(ctx, eventDataBatch, nil)
}

type envConfig struct {
	ConnectionString string `env:"AZURE_EVENT_HUB_CONNECTION_STRING"`
	Namespace        string `env:"AZURE_EVENT_HUB_NAMESPACE"`
	Name             string `env:"AZURE_EVENT_HUB_NAME"`
}

// Options holds the job file settings of the destination; EventHub overrides AZURE_EVENT_HUB_NAME.
type Options struct {
	EventHub string `mapstructure:"eventHub"`
}

// Destination sends every batch of records as the fewest Event Hubs batches that can hold it.
type Destination struct {
	producer eventProducer
}

// NewDestination builds a Destination authenticating with a connection string or, when only the
// namespace is set, with the default Azure credential chain.
func NewDestination(options map[string]any) (*Destination, error) {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, handleError(err)
	}

	opts := Options{EventHub: cfg.Name}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return nil, handleError(err)
	}
	cfg.Name = opts.EventHub

	if err := cfg.validate(); err != nil {
		return nil, handleError(err)
	}

	client, err := cfg.newProducerClient()
	if err != nil {
		return nil, handleError(err)
	}

	return &Destination{producer: producerClient{ProducerClient: client}}, nil
}

func (c envConfig) validate() error {
	switch {
	case len(c.ConnectionString) == 0 && len(c.Namespace) == 0:
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "one of AZURE_EVENT_HUB_CONNECTION_STRING or AZURE_EVENT_HUB_NAMESPACE must be present")
	case len(c.Namespace) > 0 && len(c.Name) == 0:
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "AZURE_EVENT_HUB_NAME")
	}

	return nil
}

func (c envConfig) fullyQualifiedNamespace() string {
	if strings.Contains(c.Namespace, ".servicebus.windows.net") {
		return c.Namespace
	}

	return c.Namespace + ".servicebus.windows.net"
}

func (c envConfig) newProducerClient() (*azeventhubs.ProducerClient, error) {
	if c.ConnectionString != "" {
		return azeventhubs.NewProducerClientFromConnectionString(c.ConnectionString, c.Name, nil)
	}

	credentials, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}

	return azeventhubs.NewProducerClient(c.fullyQualifiedNamespace(), c.Name, credentials, nil)
}

// SendData implements destination.Sender.
func (d *Destination) SendData(ctx context.Context, data *destination.Data) error {
	return d.SendBatch(ctx, []*destination.Data{data})
}

// DeleteData implements destination.Sender.
func (d *Destination) DeleteData(ctx context.Context, data *destination.Data) error {
	return d.SendBatch(ctx, []*destination.Data{data})
}

// SendBatch implements destination.BatchSender. A full Event Hubs batch is sent and a new one is
// started, so a single oversized record is the only way to fail for size.
func (d *Destination) SendBatch(ctx context.Context, batch []*destination.Data) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	if len(batch) == 0 {
		return nil
	}

	current, err := d.producer.newBatch(ctx)
	if err != nil {
		return handleError(err)
	}

	sent := 0
	for _, data := range batch {
		event, err := toEventData(data)
		if err != nil {
			return handleError(err)
		}

		err = current.AddEventData(event, nil)
		if errors.Is(err, azeventhubs.ErrEventDataTooLarge) && current.NumEvents() > 0 {
			if err := d.producer.send(ctx, current); err != nil {
				return handleError(err)
			}
			sent++

			if current, err = d.producer.newBatch(ctx); err != nil {
				return handleError(err)
			}
			err = current.AddEventData(event, nil)
		}
		if err != nil {
			return handleError(fmt.Errorf("record %q: %w", data.Name, err))
		}
	}

	if current.NumEvents() > 0 {
		if err := d.producer.send(ctx, current); err != nil {
			return handleError(err)
		}
		sent++
	}

	log.Debug("batch sent", "records", len(batch), "eventBatches", sent)
	return nil
}

func toEventData(data *destination.Data) (*azeventhubs.EventData, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	operation := "upsert"
	if data.IsDelete() {
		operation = "delete"
	}

	return &azeventhubs.EventData{
		Body:        body,
		ContentType: to.Ptr(contentType),
		Properties: map[string]any{
			"operation":  operation,
			"itemFamily": data.ItemFamily,
			"apiVersion": data.APIVersion,
		},
	}, nil
}

// Close implements destination.ClosableSender.
func (d *Destination) Close(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	log.Debug("closing Microsoft Azure Event Hubs producer")
	return handleError(d.producer.Close(ctx))
}

func handleError(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrEventHubsDestination, err)
}
