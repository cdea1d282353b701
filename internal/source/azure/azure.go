// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/source"
)

var (
	// ErrAzureSource is the sentinel error for all Azure Source errors.
	ErrAzureSource = errors.New("azure source")
	// ErrUnexpectedResponse reports Resource Graph responses not in the object array format.
	ErrUnexpectedResponse = errors.New("unexpected resource graph response")
)

const (
	logName = "transfer:source:azure"
)

var _ source.Loader = &Source{}
var _ source.ClosableSource = &Source{}

// resourceGraphClient is the subset of armresourcegraph.Client used by the Source.
type resourceGraphClient interface {
	Resources(ctx context.Context, query armresourcegraph.QueryRequest, options *armresourcegraph.ClientResourcesOptions) (armresourcegraph.ClientResourcesResponse, error)
}

// Source queries Azure Resource Graph one page at a time; the resume token is the $skipToken
// returned by the service.
type Source struct {
	sourceConfig

	lock      sync.Mutex
	client    resourceGraphClient
	newClient func() (resourceGraphClient, error)
}

// NewSource creates a new Azure Source reading credentials and the default subscription from the
// env variables.
func NewSource(options map[string]any, pageSize int) (*Source, error) {
	envCfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, handleError(err)
	}

	cfg, err := newSourceConfig(envCfg, options, pageSize)
	if err != nil {
		return nil, handleError(err)
	}

	return &Source{
		sourceConfig: cfg,
		newClient: func() (resourceGraphClient, error) {
			return newResourceGraphClient()
		},
	}, nil
}

func (s *Source) graphClient() (resourceGraphClient, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := s.newClient()
	if err != nil {
		return nil, err
	}

	s.client = client
	return client, nil
}

// Load implements source.Loader.
func (s *Source) Load(ctx context.Context, resumeToken string) (*source.Page, error) {
	log := logger.FromContext(ctx).WithName(logName)

	client, err := s.graphClient()
	if err != nil {
		return nil, handleError(err)
	}

	request := armresourcegraph.QueryRequest{
		Query:         to.Ptr(s.query),
		Subscriptions: to.SliceOfPtrs(s.subscriptions...),
		Options: &armresourcegraph.QueryRequestOptions{
			ResultFormat: to.Ptr(armresourcegraph.ResultFormatObjectArray),
			Top:          to.Ptr(int32(s.pageSize)),
		},
	}
	if resumeToken != "" {
		request.Options.SkipToken = to.Ptr(resumeToken)
	}

	log.Trace("querying resource graph", "query", s.query, "subscriptions", s.subscriptions, "skipToken", resumeToken)
	response, err := client.Resources(ctx, request, nil)
	if err != nil {
		return nil, handleError(err)
	}

	rows, ok := response.Data.([]any)
	if !ok && response.Data != nil {
		return nil, handleError(fmt.Errorf("%w: data of type %T", ErrUnexpectedResponse, response.Data))
	}

	page := &source.Page{Data: make([]source.Data, 0, len(rows))}
	for _, row := range rows {
		values, ok := row.(map[string]any)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: row of type %T", ErrUnexpectedResponse, row))
		}

		resourceType, _ := values["type"].(string)
		page.Data = append(page.Data, source.Data{
			Type:      resourceType,
			Operation: source.DataOperationUpsert,
			Values:    values,
		})
	}

	if response.SkipToken != nil {
		page.ResumeToken = *response.SkipToken
	}

	log.Debug("resource graph page loaded", "count", len(page.Data), "hasNextPage", page.ResumeToken != "")
	return page, nil
}

// Close implements source.ClosableSource. Resource Graph clients hold no connection so only the
// cached client is released.
func (s *Source) Close(ctx context.Context, _ time.Duration) error {
	log := logger.FromContext(ctx).WithName(logName)
	log.Debug("closing Microsoft Azure client")

	s.lock.Lock()
	s.client = nil
	s.lock.Unlock()

	log.Trace("closed Microsoft Azure client")
	return nil
}

// handleError always wraps the given error with ErrAzureSource.
// Response errors are reduced to their error code to keep the message readable.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		err = fmt.Errorf("%s (status %d)", respErr.ErrorCode, respErr.StatusCode)
	}

	return fmt.Errorf("%w: %w", ErrAzureSource, err)
}
