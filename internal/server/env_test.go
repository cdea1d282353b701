// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentVariables(t *testing.T) {
	t.Run("load environment variables", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "3000")
		t.Setenv("HTTP_HOST", "127.0.0.1")
		envVars, err := LoadServerConfig()
		require.NoError(t, err)
		require.Equal(t, 3000, envVars.HTTPPort)
		require.Equal(t, "127.0.0.1", envVars.HTTPHost)
		require.True(t, envVars.DisableStartupMessage)
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "655350")
		_, err := LoadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})

	t.Run("port is not a number", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "http")
		_, err := LoadServerConfig()
		require.ErrorIs(t, err, ErrEnvVariablesNotValid)
	})
}

func TestLoadValidateEnvironmentVariables(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		port        int
		expectError bool
	}{
		"negative port": {
			port:        -1,
			expectError: true,
		},
		"port too big": {
			port:        655350,
			expectError: true,
		},
		"valid port": {
			port: 3000,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			err := validateEnvironmentVariables(&config{HTTPPort: test.port})
			if test.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
