// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/caarlos0/env/v11"
	"github.com/segmentio/ksuid"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/logger"
)

const (
	loggerName = "transfer:destination:blob"

	blobExtension   = ".jsonl"
	blobContentType = "application/x-ndjson"
)

var (
	// ErrBlobDestination wraps errors emitted by the Azure Blob Storage destination.
	ErrBlobDestination = errors.New("blob destination")
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
)

var _ destination.BatchSender = &Destination{}
var _ destination.Installer = &Destination{}

// blobClient is the subset of azblob.Client used by the Destination.
type blobClient interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	DeleteContainer(ctx context.Context, containerName string, o *azblob.DeleteContainerOptions) (azblob.DeleteContainerResponse, error)
}

type envConfig struct {
	ConnectionString string `env:"AZURE_STORAGE_BLOB_CONNECTION_STRING"`
	StorageAccount   string `env:"AZURE_STORAGE_BLOB_ACCOUNT_NAME"`
	ContainerName    string `env:"AZURE_STORAGE_BLOB_CONTAINER_NAME"`
}

// Options holds the job file settings of the destination; Container overrides
// AZURE_STORAGE_BLOB_CONTAINER_NAME.
type Options struct {
	Container string `mapstructure:"container"`
	Prefix    string `mapstructure:"prefix"`
}

// Destination uploads batches of records to an Azure Blob Storage container.
type Destination struct {
	client    blobClient
	container string
	prefix    string
}

// NewDestination builds a Destination authenticating with a connection string or, when only the
// account name is set, with the default Azure credential chain.
func NewDestination(options map[string]any) (*Destination, error) {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, handleError(err)
	}

	opts := Options{Container: cfg.ContainerName}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return nil, handleError(err)
	}

	if err := cfg.validate(opts); err != nil {
		return nil, handleError(err)
	}

	client, err := cfg.newClient()
	if err != nil {
		return nil, handleError(err)
	}

	return &Destination{
		client:    client,
		container: opts.Container,
		prefix:    strings.Trim(opts.Prefix, "/"),
	}, nil
}

func (c envConfig) validate(opts Options) error {
	switch {
	case len(c.ConnectionString) == 0 && len(c.StorageAccount) == 0:
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "one of AZURE_STORAGE_BLOB_CONNECTION_STRING or AZURE_STORAGE_BLOB_ACCOUNT_NAME must be present")
	case len(opts.Container) == 0:
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "AZURE_STORAGE_BLOB_CONTAINER_NAME")
	}

	return nil
}

func (c envConfig) serviceURL() string {
	if strings.Contains(c.StorageAccount, ".blob.core.windows.net") {
		return c.StorageAccount
	}

	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.StorageAccount)
}

func (c envConfig) newClient() (*azblob.Client, error) {
	if c.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(c.ConnectionString, nil)
	}

	credentials, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}

	return azblob.NewClient(c.serviceURL(), credentials, nil)
}

// SendData implements destination.Sender.
func (d *Destination) SendData(ctx context.Context, data *destination.Data) error {
	return d.SendBatch(ctx, []*destination.Data{data})
}

// DeleteData implements destination.Sender. Deletions are written as records with the delete
// operation, like upserts.
func (d *Destination) DeleteData(ctx context.Context, data *destination.Data) error {
	return d.SendBatch(ctx, []*destination.Data{data})
}

// SendBatch implements destination.BatchSender.
func (d *Destination) SendBatch(ctx context.Context, batch []*destination.Data) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	if len(batch) == 0 {
		return nil
	}

	buffer := new(bytes.Buffer)
	encoder := json.NewEncoder(buffer)
	for _, data := range batch {
		if err := encoder.Encode(data); err != nil {
			return handleError(err)
		}
	}

	blobName := d.blobName()
	log.Debug("uploading batch", "container", d.container, "blob", blobName, "records", len(batch))
	_, err := d.client.UploadBuffer(ctx, d.container, blobName, buffer.Bytes(), &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(blobContentType)},
	})
	return handleError(err)
}

func (d *Destination) blobName() string {
	name := ksuid.New().String() + blobExtension
	if d.prefix == "" {
		return name
	}

	return path.Join(d.prefix, name)
}

// Install implements destination.Installer by creating the container.
func (d *Destination) Install(ctx context.Context) (bool, []string, error) {
	_, err := d.client.CreateContainer(ctx, d.container, nil)
	switch {
	case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
		return true, []string{" > container `" + d.container + "` already exists"}, nil
	case err != nil:
		return false, []string{" > container `" + d.container + "` creation failed"}, handleError(err)
	}

	return true, []string{" > container `" + d.container + "` created"}, nil
}

// Uninstall implements destination.Installer by deleting the container and every blob inside it.
func (d *Destination) Uninstall(ctx context.Context) (bool, []string, error) {
	_, err := d.client.DeleteContainer(ctx, d.container, nil)
	switch {
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return true, []string{" > container `" + d.container + "` does not exist"}, nil
	case err != nil:
		return false, []string{" > container `" + d.container + "` deletion failed"}, handleError(err)
	}

	return true, []string{" > container `" + d.container + "` deleted"}, nil
}

func handleError(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrBlobDestination, err)
}
