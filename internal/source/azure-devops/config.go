// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azuredevops

import (
	"errors"
	"fmt"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/samber/lo"

	"github.com/mia-platform/transfer/internal/config"
)

var (
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
	// ErrUnsupportedType reports a resource type the source cannot list.
	ErrUnsupportedType = errors.New("unsupported resource type")
)

// envConfig holds all the configuration needed to connect to Azure DevOps.
type envConfig struct {
	OrganizationURL string `env:"AZURE_DEVOPS_ORGANIZATION_URL"`
	PersonalToken   string `env:"AZURE_DEVOPS_PERSONAL_TOKEN"`
}

// Options holds the job file settings of an Azure DevOps source.
type Options struct {
	// Types lists the resource types to read, in order; every supported type when empty.
	Types []string `mapstructure:"types"`
}

func (c envConfig) validate() error {
	if len(c.OrganizationURL) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "AZURE_DEVOPS_ORGANIZATION_URL")
	}

	if len(c.PersonalToken) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "AZURE_DEVOPS_PERSONAL_TOKEN")
	}
	return nil
}

func (c envConfig) connection() *azuredevops.Connection {
	return azuredevops.NewPatConnection(c.OrganizationURL, c.PersonalToken)
}

func decodeTypes(options map[string]any) ([]string, error) {
	opts := Options{}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	if len(opts.Types) == 0 {
		return []string{gitRepositoryType, teamType}, nil
	}

	for _, resourceType := range opts.Types {
		if _, ok := resourceEndpoints[resourceType]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, resourceType)
		}
	}

	return lo.Uniq(opts.Types), nil
}
