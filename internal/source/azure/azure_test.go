// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azure

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/transfer/internal/source"
)

// fakeGraphClient serves rows in pages of the requested size; skip tokens are "skip-<offset>".
type fakeGraphClient struct {
	rows []any
	err  error

	requests []armresourcegraph.QueryRequest
}

func (f *fakeGraphClient) Resources(_ context.Context, query armresourcegraph.QueryRequest, _ *armresourcegraph.ClientResourcesOptions) (armresourcegraph.ClientResourcesResponse, error) {
	f.requests = append(f.requests, query)
	if f.err != nil {
		return armresourcegraph.ClientResourcesResponse{}, f.err
	}

	start := 0
	if query.Options.SkipToken != nil {
		start, _ = strconv.Atoi(strings.TrimPrefix(*query.Options.SkipToken, "skip-"))
	}

	end := min(start+int(*query.Options.Top), len(f.rows))
	response := armresourcegraph.ClientResourcesResponse{
		QueryResponse: armresourcegraph.QueryResponse{
			Data:  f.rows[start:end],
			Count: to.Ptr(int64(end - start)),
		},
	}
	if end < len(f.rows) {
		response.SkipToken = to.Ptr("skip-" + strconv.Itoa(end))
	}
	return response, nil
}

func newTestSource(client resourceGraphClient, pageSize int) *Source {
	return &Source{
		sourceConfig: sourceConfig{
			query:         defaultQuery,
			subscriptions: []string{"00000000-0000-0000-0000-000000000000"},
			pageSize:      pageSize,
		},
		newClient: func() (resourceGraphClient, error) {
			return client, nil
		},
	}
}

func resourceRow(name, resourceType string) map[string]any {
	return map[string]any{
		"id":       "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/rg/providers/" + resourceType + "/" + name,
		"name":     name,
		"type":     resourceType,
		"location": "westeurope",
		"tags":     map[string]any{},
	}
}

func TestNewSource(t *testing.T) {
	t.Setenv("AZURE_SUBSCRIPTION_ID", "00000000-0000-0000-0000-000000000000")

	src, err := NewSource(nil, 10)
	require.NoError(t, err)
	assert.Equal(t, sourceConfig{
		query:         defaultQuery,
		subscriptions: []string{"00000000-0000-0000-0000-000000000000"},
		pageSize:      10,
	}, src.sourceConfig)
	assert.NotNil(t, src.newClient)
}

func TestNewSourceMissingSubscription(t *testing.T) {
	t.Setenv("AZURE_SUBSCRIPTION_ID", "")

	src, err := NewSource(nil, 10)
	assert.ErrorIs(t, err, ErrMissingEnvVariable)
	assert.ErrorIs(t, err, ErrAzureSource)
	assert.Nil(t, src)
}

func TestLoadPages(t *testing.T) {
	t.Parallel()

	client := &fakeGraphClient{
		rows: []any{
			resourceRow("vm-1", "microsoft.compute/virtualmachines"),
			resourceRow("rg", "microsoft.resources/resourcegroups"),
			resourceRow("vm-2", "microsoft.compute/virtualmachines"),
		},
	}
	src := newTestSource(client, 2)
	defer src.Close(t.Context(), time.Second)

	page, err := src.Load(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, "skip-2", page.ResumeToken)
	assert.Equal(t, []source.Data{
		{
			Type:      "microsoft.compute/virtualmachines",
			Operation: source.DataOperationUpsert,
			Values:    resourceRow("vm-1", "microsoft.compute/virtualmachines"),
		},
		{
			Type:      "microsoft.resources/resourcegroups",
			Operation: source.DataOperationUpsert,
			Values:    resourceRow("rg", "microsoft.resources/resourcegroups"),
		},
	}, page.Data)

	page, err = src.Load(t.Context(), page.ResumeToken)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "vm-2", page.Data[0].Values["name"])
	assert.Empty(t, page.ResumeToken)

	require.Len(t, client.requests, 2)
	first := client.requests[0]
	assert.Equal(t, defaultQuery, *first.Query)
	assert.Equal(t, []*string{to.Ptr("00000000-0000-0000-0000-000000000000")}, first.Subscriptions)
	assert.Equal(t, armresourcegraph.ResultFormatObjectArray, *first.Options.ResultFormat)
	assert.Equal(t, int32(2), *first.Options.Top)
	assert.Nil(t, first.Options.SkipToken)
	assert.Equal(t, "skip-2", *client.requests[1].Options.SkipToken)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		client        *fakeGraphClient
		expectedErr   error
		errorContains string
	}{
		"response error": {
			client: &fakeGraphClient{
				err: &azcore.ResponseError{ErrorCode: "AuthorizationFailed", StatusCode: http.StatusForbidden},
			},
			errorContains: "AuthorizationFailed (status 403)",
		},
		"row is not an object": {
			client:      &fakeGraphClient{rows: []any{"not-an-object"}},
			expectedErr: ErrUnexpectedResponse,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			src := newTestSource(test.client, 10)
			page, err := src.Load(t.Context(), "")
			assert.Nil(t, page)
			assert.ErrorIs(t, err, ErrAzureSource)
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
			}
			if test.errorContains != "" {
				assert.ErrorContains(t, err, test.errorContains)
			}
		})
	}
}

func TestLoadClientError(t *testing.T) {
	t.Parallel()

	src := newTestSource(nil, 10)
	src.newClient = func() (resourceGraphClient, error) {
		return nil, assert.AnError
	}

	_, err := src.Load(t.Context(), "")
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, err, ErrAzureSource)
}
