// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/logger"
)

const (
	loggerName = "transfer:destination:pubsub"

	operationAttribute  = "operation"
	itemFamilyAttribute = "itemFamily"
	apiVersionAttribute = "apiVersion"
)

var (
	// ErrPubSubDestination wraps errors emitted by the Pub/Sub destination.
	ErrPubSubDestination = errors.New("pubsub destination")
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
)

var _ destination.BatchSender = &Destination{}
var _ destination.ClosableSender = &Destination{}
var _ destination.Installer = &Destination{}

type envConfig struct {
	ProjectID string `env:"GOOGLE_CLOUD_PUBSUB_PROJECT"`
	TopicName string `env:"GOOGLE_CLOUD_PUBSUB_TOPIC"`
}

// Options holds the job file settings of the destination, overriding the environment.
type Options struct {
	Project string `mapstructure:"project"`
	Topic   string `mapstructure:"topic"`
}

// Destination publishes one Pub/Sub message per record.
type Destination struct {
	projectID string
	topicID   string

	clientOptions []option.ClientOption

	lock      sync.Mutex
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewDestination returns a Destination publishing on the topic named by the options or by the
// GOOGLE_CLOUD_PUBSUB_PROJECT and GOOGLE_CLOUD_PUBSUB_TOPIC env variables.
func NewDestination(options map[string]any) (*Destination, error) {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, handleError(err)
	}

	opts := Options{Project: cfg.ProjectID, Topic: cfg.TopicName}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return nil, handleError(err)
	}

	switch {
	case opts.Project == "":
		return nil, handleError(fmt.Errorf("%w: %s", ErrMissingEnvVariable, "GOOGLE_CLOUD_PUBSUB_PROJECT"))
	case opts.Topic == "":
		return nil, handleError(fmt.Errorf("%w: %s", ErrMissingEnvVariable, "GOOGLE_CLOUD_PUBSUB_TOPIC"))
	}

	return &Destination{
		projectID: opts.Project,
		topicID:   opts.Topic,
	}, nil
}

func (d *Destination) topicName() string {
	return fmt.Sprintf("projects/%s/topics/%s", d.projectID, d.topicID)
}

// initClient initializes the Pub/Sub client and publisher once and reuses them afterwards.
func (d *Destination) initClient(ctx context.Context) (*pubsub.Client, *pubsub.Publisher, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.client != nil {
		return d.client, d.publisher, nil
	}

	client, err := pubsub.NewClient(ctx, d.projectID, d.clientOptions...)
	if err != nil {
		return nil, nil, err
	}

	d.client = client
	d.publisher = client.Publisher(d.topicName())
	return d.client, d.publisher, nil
}

// SendData implements destination.Sender.
func (d *Destination) SendData(ctx context.Context, data *destination.Data) error {
	return d.SendBatch(ctx, []*destination.Data{data})
}

// DeleteData implements destination.Sender.
func (d *Destination) DeleteData(ctx context.Context, data *destination.Data) error {
	return d.SendBatch(ctx, []*destination.Data{data})
}

// SendBatch implements destination.BatchSender. It returns once every message of the batch has
// been acknowledged by the server, with the first publish error if any.
func (d *Destination) SendBatch(ctx context.Context, batch []*destination.Data) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	if len(batch) == 0 {
		return nil
	}

	_, publisher, err := d.initClient(ctx)
	if err != nil {
		return handleError(err)
	}

	results := make([]*pubsub.PublishResult, 0, len(batch))
	for _, data := range batch {
		message, err := toMessage(data)
		if err != nil {
			return handleError(err)
		}
		results = append(results, publisher.Publish(ctx, message))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, result := range results {
		group.Go(func() error {
			_, err := result.Get(groupCtx)
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return handleError(err)
	}

	log.Debug("batch published", "topic", d.topicName(), "messages", len(results))
	return nil
}

func toMessage(data *destination.Data) (*pubsub.Message, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	operation := "upsert"
	if data.IsDelete() {
		operation = "delete"
	}

	return &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			operationAttribute:  operation,
			itemFamilyAttribute: data.ItemFamily,
			apiVersionAttribute: data.APIVersion,
		},
	}, nil
}

// Install implements destination.Installer by creating the topic.
func (d *Destination) Install(ctx context.Context) (bool, []string, error) {
	client, _, err := d.initClient(ctx)
	if err != nil {
		return false, nil, handleError(err)
	}

	_, err = client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: d.topicName()})
	switch {
	case status.Code(err) == codes.AlreadyExists:
		return true, []string{" > topic `" + d.topicName() + "` already exists"}, nil
	case err != nil:
		return false, []string{" > topic `" + d.topicName() + "` creation failed"}, handleError(err)
	}

	return true, []string{" > topic `" + d.topicName() + "` created"}, nil
}

// Uninstall implements destination.Installer by deleting the topic.
func (d *Destination) Uninstall(ctx context.Context) (bool, []string, error) {
	client, _, err := d.initClient(ctx)
	if err != nil {
		return false, nil, handleError(err)
	}

	err = client.TopicAdminClient.DeleteTopic(ctx, &pubsubpb.DeleteTopicRequest{Topic: d.topicName()})
	switch {
	case status.Code(err) == codes.NotFound:
		return true, []string{" > topic `" + d.topicName() + "` does not exist"}, nil
	case err != nil:
		return false, []string{" > topic `" + d.topicName() + "` deletion failed"}, handleError(err)
	}

	return true, []string{" > topic `" + d.topicName() + "` deleted"}, nil
}

// Close implements destination.ClosableSender, flushing pending messages before closing the client.
func (d *Destination) Close(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(loggerName)

	d.lock.Lock()
	defer d.lock.Unlock()
	if d.client == nil {
		return nil
	}

	log.Debug("closing GCP pub/sub client")
	d.publisher.Stop()
	err := d.client.Close()
	d.client = nil
	d.publisher = nil

	log.Trace("closed GCP pub/sub client")
	return handleError(err)
}

// handleError unwraps gRPC status errors and wraps them with ErrPubSubDestination.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	if statusErr, ok := status.FromError(err); ok {
		err = fmt.Errorf("%s: %s", statusErr.Code(), statusErr.Message())
	}

	return fmt.Errorf("%w: %w", ErrPubSubDestination, err)
}
