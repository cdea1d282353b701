// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pipeline

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/mapper"
)

func syntheticConfig() *config.TransferConfig {
	return &config.TransferConfig{
		Name: "people",
		Source: config.SourceConfig{
			Type:     "synthetic",
			PageSize: 2,
			Options: map[string]any{
				"count":    5,
				"seed":     7,
				"dataType": "person",
			},
		},
		Destination: config.DestinationConfig{
			Type: "writer",
		},
		Mappings: []config.MappingConfig{
			{
				Type:       "person",
				APIVersion: "v1",
				ItemFamily: "people",
				Mappings: config.Mappings{
					Identifier: "person-{{ .index }}",
					Spec: map[string]string{
						"age":  "{{ .age }}",
						"name": "{{ .name }}",
					},
				},
			},
		},
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	output := new(bytes.Buffer)
	pipeline, err := NewFromConfig(syntheticConfig(), FactoryOptions{
		LocalOutput: output,
		BatchWrite:  3,
		Trace:       "trace-id",
	})
	require.NoError(t, err)
	assert.Equal(t, "people", pipeline.Name())
	assert.Equal(t, 3, pipeline.config.BatchWrite)
	assert.Equal(t, "trace-id", pipeline.config.Trace)

	stats, err := pipeline.Sync(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.RowsWritten)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 5, strings.Count(output.String(), "Send data:"))
	assert.Contains(t, output.String(), "person-4")
}

func TestNewFromConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		update      func(cfg *config.TransferConfig)
		expectedErr error
		parsingErr  bool
	}{
		"unsupported source": {
			update:      func(cfg *config.TransferConfig) { cfg.Source.Type = "ftp" },
			expectedErr: errors.ErrUnsupported,
		},
		"unsupported destination": {
			update:      func(cfg *config.TransferConfig) { cfg.Destination.Type = "ftp" },
			expectedErr: errors.ErrUnsupported,
		},
		"invalid source options": {
			update:      func(cfg *config.TransferConfig) { cfg.Source.Options["unknown"] = true },
			expectedErr: config.ErrValidation,
		},
		"invalid destination options": {
			update:      func(cfg *config.TransferConfig) { cfg.Destination.Options = map[string]any{"path": "out"} },
			expectedErr: config.ErrValidation,
		},
		"broken mapping template": {
			update:     func(cfg *config.TransferConfig) { cfg.Mappings[0].Mappings.Identifier = "{{ .index" },
			parsingErr: true,
		},
		"broken filter template": {
			update:     func(cfg *config.TransferConfig) { cfg.Filter = "{{ if }}" },
			parsingErr: true,
		},
		"type mapped twice": {
			update: func(cfg *config.TransferConfig) {
				cfg.Mappings = append(cfg.Mappings, cfg.Mappings[0])
			},
			expectedErr: config.ErrValidation,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := syntheticConfig()
			test.update(cfg)

			pipeline, err := NewFromConfig(cfg, FactoryOptions{})
			assert.ErrorIs(t, err, ErrPipeline)
			assert.Nil(t, pipeline)
			if test.parsingErr {
				var parsingErr *mapper.ParsingError
				assert.ErrorAs(t, err, &parsingErr)
				return
			}
			assert.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestNewDestinationLocalOutput(t *testing.T) {
	t.Parallel()

	output := new(bytes.Buffer)
	sender, err := NewDestination(config.DestinationConfig{Type: "catalog"}, output)
	require.NoError(t, err)
	require.NoError(t, sender.DeleteData(t.Context(), item2))
	assert.Contains(t, output.String(), "Delete data:")
}
