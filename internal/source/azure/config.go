// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"

	"github.com/mia-platform/transfer/internal/config"
)

const (
	defaultQuery    = "Resources"
	defaultPageSize = 100
	maxPageSize     = 1000
)

var (
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
)

// envConfig holds the configuration read from the environment.
type envConfig struct {
	SubscriptionID string `env:"AZURE_SUBSCRIPTION_ID"`
}

// Options holds the job file settings of an Azure source.
type Options struct {
	// Query is the Resource Graph query; the default lists every resource.
	Query string `mapstructure:"query"`
	// Subscriptions scopes the query; AZURE_SUBSCRIPTION_ID is used when empty.
	Subscriptions []string `mapstructure:"subscriptions"`
}

type sourceConfig struct {
	query         string
	subscriptions []string
	pageSize      int
}

func newSourceConfig(env envConfig, options map[string]any, pageSize int) (sourceConfig, error) {
	opts := Options{Query: defaultQuery}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return sourceConfig{}, err
	}

	subscriptions := opts.Subscriptions
	if len(subscriptions) == 0 && env.SubscriptionID != "" {
		subscriptions = []string{env.SubscriptionID}
	}

	cfg := sourceConfig{
		query:         strings.TrimSpace(opts.Query),
		subscriptions: subscriptions,
		pageSize:      pageSize,
	}
	if err := cfg.validate(); err != nil {
		return sourceConfig{}, err
	}

	if cfg.pageSize <= 0 {
		cfg.pageSize = defaultPageSize
	}
	cfg.pageSize = min(cfg.pageSize, maxPageSize)
	return cfg, nil
}

// validate checks if the configuration is valid for querying Resource Graph.
func (c sourceConfig) validate() error {
	switch {
	case len(c.subscriptions) == 0:
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "AZURE_SUBSCRIPTION_ID")
	case len(c.query) == 0:
		return fmt.Errorf("%w: query must not be empty", config.ErrValidation)
	}

	return nil
}

func newResourceGraphClient() (*armresourcegraph.Client, error) {
	azureCredentials, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}

	return armresourcegraph.NewClient(azureCredentials, nil)
}
