// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azuredevops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
)

const (
	gitRepositoryType = "gitrepository"
	teamType          = "team"

	continuationHeader = "X-MS-ContinuationToken"
	continuationParam  = "continuationToken"
)

type resourceEndpoint struct {
	path        string
	queryParams url.Values
}

var resourceEndpoints = map[string]resourceEndpoint{
	gitRepositoryType: {
		path: "_apis/git/repositories",
		queryParams: url.Values{
			"includeLinks":   []string{"true"},
			"includeAllUrls": []string{"true"},
			"includeHidden":  []string{"true"},
		},
	},
	teamType: {
		path: "_apis/teams",
		queryParams: url.Values{
			"$expandIdentity": []string{"true"},
		},
	},
}

type client struct {
	organizationURL *url.URL
	authorization   string

	client *http.Client
}

func newClient(connection *azuredevops.Connection) (*client, error) {
	organizationURL, err := url.Parse(connection.BaseUrl)
	if err != nil {
		return nil, err
	}

	return &client{
		organizationURL: organizationURL,
		authorization:   connection.AuthorizationString,
		client:          &http.Client{},
	}, nil
}

// listPage returns one page of resourceType and the continuation token of the following one.
func (c *client) listPage(ctx context.Context, resourceType, continuationToken string) ([]map[string]any, string, error) {
	endpoint, ok := resourceEndpoints[resourceType]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedType, resourceType)
	}

	queryParams := url.Values{}
	for key, values := range endpoint.queryParams {
		queryParams[key] = values
	}
	if continuationToken != "" {
		queryParams.Set(continuationParam, continuationToken)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, endpoint.path, queryParams)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("unexpected status %d listing %s: %s", resp.StatusCode, resourceType, body)
	}

	results, err := unmarshalResponse(resp.Body)
	if err != nil {
		return nil, "", err
	}

	return results, resp.Header.Get(continuationHeader), nil //nolint:canonicalheader
}

func (c *client) doRequest(ctx context.Context, method string, path string, queryParam url.Values) (*http.Response, error) {
	url := c.organizationURL.JoinPath(path)
	url.RawQuery = queryParam.Encode()

	req, err := http.NewRequestWithContext(ctx, method, url.String(), nil)
	if err != nil {
		return nil, err
	}

	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json;api-version=7.1;charset=utf-8")
	return c.client.Do(req)
}

func unmarshalResponse(body io.Reader) ([]map[string]any, error) {
	type resultsStruct struct {
		Count int              `json:"count"`
		Value []map[string]any `json:"value"`
	}

	results := new(resultsStruct)
	if err := json.NewDecoder(body).Decode(results); err != nil {
		return nil, err
	}

	return results.Value, nil
}
