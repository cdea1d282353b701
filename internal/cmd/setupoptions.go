// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/pipeline"
	"github.com/mia-platform/transfer/internal/registry"
)

const (
	setupLoggerName = "transfer:setup"

	allTag = "all"
)

// setupOperation is either registry.Install or registry.Uninstall.
type setupOperation func(ctx context.Context, models *registry.Registry, tag string) (registry.SetupResult, error)

var (
	setupInstall   setupOperation = registry.Install
	setupUninstall setupOperation = registry.Uninstall

	// destinationGetter returns the sender described by a destination configuration.
	// It can be overridden for testing purposes.
	destinationGetter = pipeline.NewDestination
)

// setupOptions holds the state of a "setup install" or "setup uninstall" invocation.
type setupOptions struct {
	transfers   []*config.TransferConfig
	tag         string
	operation   setupOperation
	localOutput io.Writer
	output      io.Writer

	destinationGetter func(config.DestinationConfig, io.Writer) (destination.Sender, error)

	lock    sync.Mutex
	senders []destination.Sender
}

// destinationRepo exposes a transfer destination as a registry model.
type destinationRepo struct {
	description registry.Description
	sender      destination.Sender
}

func (r *destinationRepo) Model() registry.Definition {
	definition := registry.Definition{Description: r.description}
	if installer, ok := r.sender.(destination.Installer); ok {
		definition.OnInstall = installer.Install
		definition.OnUninstall = installer.Uninstall
	}

	return definition
}

// toSetupOptions builds a setupOptions instance from the parsed flags and CLI arguments.
func (f *flags) toSetupOptions(cmd *cobra.Command, operation setupOperation, args []string) (*setupOptions, error) {
	transfers, err := loadTransfers(f.transferPaths)
	if err != nil {
		return nil, err
	}

	tag := allTag
	if len(args) > 0 {
		tag = args[0]
	}

	return &setupOptions{
		transfers:   transfers,
		tag:         tag,
		operation:   operation,
		localOutput: f.localWriter(cmd),
		output:      cmd.OutOrStdout(),

		destinationGetter: destinationGetter,
	}, nil
}

// registry returns a registry holding a model for the destination of every transfer.
func (o *setupOptions) registry() *registry.Registry {
	specs := make(map[string]registry.Spec, len(o.transfers))
	for _, cfg := range o.transfers {
		description := registry.Description{
			ID:         cfg.Name,
			Provider:   cfg.Destination.Type,
			Domain:     cfg.Name,
			AutoCreate: cfg.Destination.AutoCreate,
			DependsOn:  cfg.Destination.DependsOn,
		}

		destinationConfig := cfg.Destination
		specs[cfg.Name] = registry.Spec{
			Tags: []string{cfg.Name, allTag},
			NewRepo: func() (registry.Repo, error) {
				sender, err := o.destinationGetter(destinationConfig, o.localOutput)
				if err != nil {
					return nil, err
				}

				o.lock.Lock()
				o.senders = append(o.senders, sender)
				o.lock.Unlock()
				return &destinationRepo{description: description, sender: sender}, nil
			},
		}
	}

	return registry.New(specs)
}

// execute runs the setup operation on the models tagged with the selected tag and prints its log.
func (o *setupOptions) execute(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(setupLoggerName)
	models := o.registry()
	defer o.closeSenders(ctx)

	if len(models.ModelsByTag(o.tag)) == 0 {
		return fmt.Errorf("%w: unknown tag %q, available tags: %s", errInvalidArguments, o.tag, strings.Join(models.Tags(), ", "))
	}

	log.Debug("running setup", "tag", o.tag)
	result, err := o.operation(ctx, models, o.tag)
	o.printResult(result)
	if err != nil {
		return err
	}

	failed := lo.FilterMap(result.Changes, func(change registry.Change, _ int) (string, bool) {
		return change.ID, !change.Success && !change.Skipped
	})
	if len(failed) > 0 {
		return fmt.Errorf("setup failed for: %s", strings.Join(failed, ", "))
	}

	return nil
}

func (o *setupOptions) printResult(result registry.SetupResult) {
	for _, line := range result.Log {
		fmt.Fprintln(o.output, line)
	}

	for _, change := range result.Changes {
		outcome := "failed"
		switch {
		case change.Skipped:
			outcome = "skipped"
		case change.Success:
			outcome = "done"
		}
		fmt.Fprintf(o.output, "%s: %s\n", change.ID, outcome)
	}
}

func (o *setupOptions) closeSenders(ctx context.Context) {
	log := logger.FromContext(ctx).WithName(setupLoggerName)

	o.lock.Lock()
	defer o.lock.Unlock()
	for _, sender := range o.senders {
		closable, ok := sender.(destination.ClosableSender)
		if !ok {
			continue
		}

		if err := closable.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("error closing destination", "error", err)
		}
	}
}
