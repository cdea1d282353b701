// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/mia-platform/transfer/internal/checkpoint"
	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/destination/blob"
	"github.com/mia-platform/transfer/internal/destination/catalog"
	"github.com/mia-platform/transfer/internal/destination/eventhubs"
	"github.com/mia-platform/transfer/internal/destination/pubsub"
	"github.com/mia-platform/transfer/internal/destination/writer"
	"github.com/mia-platform/transfer/internal/mapper"
	"github.com/mia-platform/transfer/internal/source"
	"github.com/mia-platform/transfer/internal/source/azure"
	azuredevops "github.com/mia-platform/transfer/internal/source/azure-devops"
	"github.com/mia-platform/transfer/internal/source/file"
	"github.com/mia-platform/transfer/internal/source/gcp"
	"github.com/mia-platform/transfer/internal/source/synthetic"
)

// FactoryOptions overrides the settings read from a transfer configuration.
type FactoryOptions struct {
	// LocalOutput replaces the configured destination with a human readable dump when set.
	LocalOutput io.Writer
	// BatchWrite overrides the configured batch size when greater than zero.
	BatchWrite int
	// Trace overrides the configured trace id when not empty.
	Trace string
	// Checkpoints is shared by every pipeline built with these options.
	Checkpoints checkpoint.Store
}

var (
	// sourceFactories builds the loader of every supported source type. It can be overridden in tests.
	sourceFactories = map[string]func(options map[string]any, pageSize int) (source.Loader, error){
		"file": func(options map[string]any, pageSize int) (source.Loader, error) {
			return file.NewSource(options, pageSize)
		},
		"synthetic": func(options map[string]any, pageSize int) (source.Loader, error) {
			return synthetic.NewSource(options, pageSize)
		},
		"gcp": func(options map[string]any, pageSize int) (source.Loader, error) {
			return gcp.NewSource(options, pageSize)
		},
		"azure": func(options map[string]any, pageSize int) (source.Loader, error) {
			return azure.NewSource(options, pageSize)
		},
		"azure-devops": func(options map[string]any, _ int) (source.Loader, error) {
			return azuredevops.NewSource(options)
		},
	}

	// destinationFactories builds the sender of every supported destination type.
	destinationFactories = map[string]func(options map[string]any) (destination.Sender, error){
		"writer": func(options map[string]any) (destination.Sender, error) {
			if err := config.DecodeOptions(options, &struct{}{}); err != nil {
				return nil, err
			}
			return writer.NewDestination(os.Stdout), nil
		},
		"catalog": func(options map[string]any) (destination.Sender, error) {
			if err := config.DecodeOptions(options, &struct{}{}); err != nil {
				return nil, err
			}
			return catalog.NewDestination()
		},
		"blob": func(options map[string]any) (destination.Sender, error) {
			return blob.NewDestination(options)
		},
		"pubsub": func(options map[string]any) (destination.Sender, error) {
			return pubsub.NewDestination(options)
		},
		"eventhubs": func(options map[string]any) (destination.Sender, error) {
			return eventhubs.NewDestination(options)
		},
	}
)

// NewFromConfig assembles the Pipeline described by cfg.
func NewFromConfig(cfg *config.TransferConfig, opts FactoryOptions) (*Pipeline, error) {
	mappers, err := NewDataMappers(cfg.Mappings)
	if err != nil {
		return nil, handleError(cfg.Name, err)
	}

	var filter mapper.Filter
	if cfg.Filter != "" {
		if filter, err = mapper.NewFilter(cfg.Filter); err != nil {
			return nil, handleError(cfg.Name, err)
		}
	}

	newSource, ok := sourceFactories[cfg.Source.Type]
	if !ok {
		return nil, handleError(cfg.Name, &unsupportedTypeError{Kind: "source", Type: cfg.Source.Type})
	}

	loader, err := newSource(cfg.Source.Options, cfg.Source.PageSize)
	if err != nil {
		return nil, handleError(cfg.Name, err)
	}

	sender, err := NewDestination(cfg.Destination, opts.LocalOutput)
	if err != nil {
		return nil, handleError(cfg.Name, err)
	}

	pipelineConfig := Config{
		BatchWrite:  cfg.BatchWrite,
		Trace:       cfg.Trace,
		Filter:      filter,
		Checkpoints: opts.Checkpoints,
	}
	if opts.BatchWrite > 0 {
		pipelineConfig.BatchWrite = opts.BatchWrite
	}
	if opts.Trace != "" {
		pipelineConfig.Trace = opts.Trace
	}

	return New(cfg.Name, loader, mappers, sender, pipelineConfig), nil
}

// NewDestination builds the sender described by cfg, or a writer on localOutput when it is set.
func NewDestination(cfg config.DestinationConfig, localOutput io.Writer) (destination.Sender, error) {
	if localOutput != nil {
		return writer.NewDestination(localOutput), nil
	}

	newDestination, ok := destinationFactories[cfg.Type]
	if !ok {
		return nil, &unsupportedTypeError{Kind: "destination", Type: cfg.Type}
	}

	return newDestination(cfg.Options)
}

// NewDataMappers parses the mapping rules, keyed by source data type.
func NewDataMappers(mappings []config.MappingConfig) (map[string]DataMapper, error) {
	mappers := make(map[string]DataMapper, len(mappings))
	for _, mapping := range mappings {
		if _, exists := mappers[mapping.Type]; exists {
			return nil, fmt.Errorf("%w: type %q mapped more than once", config.ErrValidation, mapping.Type)
		}

		typeMapper, err := mapper.New(mapping.Mappings.Identifier, mapping.Mappings.Spec)
		if err != nil {
			return nil, fmt.Errorf("mapping type %q: %w", mapping.Type, err)
		}

		mappers[mapping.Type] = DataMapper{
			APIVersion: mapping.APIVersion,
			ItemFamily: mapping.ItemFamily,
			Mapper:     typeMapper,
		}
	}

	return mappers, nil
}

func handleError(name string, err error) error {
	return fmt.Errorf("%w %q: %w", ErrPipeline, name, err)
}
