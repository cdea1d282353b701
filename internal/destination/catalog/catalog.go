// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/info"
	"github.com/mia-platform/transfer/internal/logger"
)

const (
	loggerName = "transfer:destination:catalog"
)

var (
	errMultipleAuthMethods = errors.New("MIA_CATALOG_TOKEN cannot be used together with MIA_CATALOG_CLIENT_ID and MIA_CATALOG_CLIENT_SECRET")
	errMissingClientID     = errors.New("MIA_CATALOG_CLIENT_ID is required when MIA_CATALOG_CLIENT_SECRET is set")
	errMissingClientSecret = errors.New("MIA_CATALOG_CLIENT_SECRET is required when MIA_CATALOG_CLIENT_ID is set")
)

var _ destination.ClosableSender = &catalogDestination{}

type CatalogError struct {
	err error
}

func (e *CatalogError) Error() string {
	return "catalog: " + e.err.Error()
}

func (e *CatalogError) Unwrap() error {
	return e.err
}

func (e *CatalogError) Is(target error) bool {
	cre, ok := target.(*CatalogError)
	if !ok {
		return false
	}

	return e.err.Error() == cre.err.Error()
}

// catalogDestination implements destination.Sender for sending and deleting data
// in the Mia-Platform Catalog.
type catalogDestination struct {
	CatalogEndpoint string `env:"MIA_CATALOG_ENDPOINT,required"`
	Token           string `env:"MIA_CATALOG_TOKEN"`
	ClientID        string `env:"MIA_CATALOG_CLIENT_ID"`
	ClientSecret    string `env:"MIA_CATALOG_CLIENT_SECRET"`
	AuthEndpoint    string `env:"MIA_CATALOG_AUTH_ENDPOINT"`

	client atomic.Pointer[http.Client]
}

// NewDestination returns a new destination.Sender configured to connect to the
// Mia-Platform Catalog. Its configuration is read from environment variables.
func NewDestination() (destination.Sender, error) {
	destination := new(catalogDestination)
	if err := env.Parse(destination); err != nil {
		return nil, handleError(err)
	}

	if err := destination.validate(); err != nil {
		return nil, handleError(err)
	}

	return destination, nil
}

// validate checks the authentication settings and derives the token endpoint from the catalog
// host when it is not set explicitly.
func (d *catalogDestination) validate() error {
	endpointURL, err := url.Parse(d.CatalogEndpoint)
	if err != nil {
		return err
	}

	switch {
	case len(d.Token) > 0 && (len(d.ClientID) > 0 || len(d.ClientSecret) > 0):
		return errMultipleAuthMethods
	case len(d.ClientID) > 0 && len(d.ClientSecret) == 0:
		return errMissingClientSecret
	case len(d.ClientSecret) > 0 && len(d.ClientID) == 0:
		return errMissingClientID
	}

	if len(d.AuthEndpoint) == 0 {
		endpointURL.Path = "/oauth/token"
		d.AuthEndpoint = endpointURL.String()
		return nil
	}

	if _, err := url.Parse(d.AuthEndpoint); err != nil {
		return err
	}
	return nil
}

// SendData implements destination.Sender.
func (d *catalogDestination) SendData(ctx context.Context, data *destination.Data) error {
	return d.handleRequest(ctx, http.MethodPost, data)
}

// DeleteData implements destination.Sender.
func (d *catalogDestination) DeleteData(ctx context.Context, data *destination.Data) error {
	return d.handleRequest(ctx, http.MethodDelete, data)
}

// handleRequest sends an HTTP request to the Catalog API with the given method and data.
// It will marshal the data into JSON and set the appropriate headers.
func (d *catalogDestination) handleRequest(ctx context.Context, method string, data *destination.Data) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	log.Trace("sending catalog request", "method", method, "itemFamily", data.ItemFamily, "name", data.Name)

	body, err := json.Marshal(data)
	if err != nil {
		return handleError(err)
	}

	request, err := http.NewRequestWithContext(ctx, method, d.CatalogEndpoint, bytes.NewReader(body))
	if err != nil {
		return handleError(err)
	}

	request.Header.Set("User-Agent", userAgentString())
	request.Header.Set("Accept", "application/json")
	if len(d.Token) > 0 {
		request.Header.Set("Authorization", "Bearer "+d.Token)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	//nolint:contextcheck // need a new context because it will be used in token requests
	resp, err := d.getClient(context.Background()).Do(request)
	if err != nil {
		return handleError(err)
	}
	defer resp.Body.Close()

	log.Debug("catalog response received", "method", method, "name", data.Name, "statusCode", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusForbidden, http.StatusUnauthorized:
		return handleError(errors.New("invalid token or insufficient permissions"))
	case http.StatusNotFound:
		return handleError(errors.New("integration registration not found"))
	default:
		decoder := json.NewDecoder(resp.Body)
		var respBody map[string]any
		if err := decoder.Decode(&respBody); err == nil {
			if message, ok := respBody["message"].(string); ok {
				return handleError(errors.New(message))
			}
		}

		return handleError(errors.New("unexpected error"))
	}
}

func (d *catalogDestination) getClient(ctx context.Context) *http.Client {
	if client := d.client.Load(); client != nil {
		return client
	}

	client := &http.Client{
		Transport: newTransport(ctx, d.AuthEndpoint, d.ClientID, d.ClientSecret),
	}
	if !d.client.CompareAndSwap(nil, client) {
		return d.client.Load()
	}
	return client
}

// Close implements destination.ClosableSender.
func (d *catalogDestination) Close(ctx context.Context) error {
	client := d.client.Load()
	if client == nil {
		return nil
	}

	logger.FromContext(ctx).WithName(loggerName).Debug("closing idle catalog connections")
	client.CloseIdleConnections()
	return nil
}

// userAgentString returns the User-Agent string to be used in HTTP requests.
func userAgentString() string {
	return info.AppName + "/" + info.Version
}

func handleError(err error) error {
	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return &CatalogError{
		err: err,
	}
}
