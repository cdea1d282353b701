// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/transfer/internal/config"
)

func TestNewSourceConfig(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		env         envConfig
		options     map[string]any
		pageSize    int
		expected    sourceConfig
		expectedErr error
	}{
		"missing subscription id": {
			expectedErr: ErrMissingEnvVariable,
		},
		"subscription from env and defaults": {
			env: envConfig{SubscriptionID: "sub"},
			expected: sourceConfig{
				query:         defaultQuery,
				subscriptions: []string{"sub"},
				pageSize:      defaultPageSize,
			},
		},
		"options override env": {
			env: envConfig{SubscriptionID: "sub"},
			options: map[string]any{
				"query":         "  Resources | where type =~ 'microsoft.compute/virtualmachines'  ",
				"subscriptions": []any{"sub-1", "sub-2"},
			},
			pageSize: 2000,
			expected: sourceConfig{
				query:         "Resources | where type =~ 'microsoft.compute/virtualmachines'",
				subscriptions: []string{"sub-1", "sub-2"},
				pageSize:      maxPageSize,
			},
		},
		"empty query": {
			env:         envConfig{SubscriptionID: "sub"},
			options:     map[string]any{"query": " "},
			expectedErr: config.ErrValidation,
		},
		"unknown option": {
			env:         envConfig{SubscriptionID: "sub"},
			options:     map[string]any{"resourceGroup": "rg"},
			expectedErr: config.ErrValidation,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			cfg, err := newSourceConfig(test.env, test.options, test.pageSize)
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, cfg)
		})
	}
}
