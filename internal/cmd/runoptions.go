// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mia-platform/transfer/internal/checkpoint"
	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/pipeline"
	"github.com/mia-platform/transfer/internal/transfer"
)

const (
	runLoggerName = "transfer:run"
)

// runOptions holds the state of a single "run" invocation.
type runOptions struct {
	transfers   []*config.TransferConfig
	resumeToken string
	batchWrite  int
	trace       string

	localOutput io.Writer
	statsOutput io.Writer

	checkpointGetter func() (checkpoint.Store, error)

	lock sync.Mutex
}

// toOptions builds a runOptions instance from the parsed flags and CLI arguments.
func (f *runFlags) toOptions(cmd *cobra.Command, args []string) (*runOptions, error) {
	transfers, err := loadTransfers(f.transferPaths)
	if err != nil {
		return nil, err
	}

	selected, err := selectTransfers(transfers, args)
	if err != nil {
		return nil, err
	}

	return &runOptions{
		transfers:   selected,
		resumeToken: f.resumeToken,
		batchWrite:  f.batchWrite,
		trace:       f.trace,
		localOutput: f.localWriter(cmd),
		statsOutput: cmd.ErrOrStderr(),

		checkpointGetter: checkpointGetter,
	}, nil
}

// validate checks the consistency of the options.
func (o *runOptions) validate() error {
	if len(o.transfers) == 0 {
		return fmt.Errorf("%w: no transfer defined in the transfer files", errInvalidArguments)
	}

	if o.resumeToken != "" && len(o.transfers) != 1 {
		return fmt.Errorf("%w: --%s needs exactly one transfer, %d selected", errInvalidArguments, resumeFlagName, len(o.transfers))
	}

	if o.batchWrite < 0 {
		return fmt.Errorf("%w: --%s must not be negative", errInvalidArguments, batchWriteFlagName)
	}

	return nil
}

// execute runs the selected transfers one after the other. A failing transfer does not stop the
// following ones, every error is returned once all of them have run.
func (o *runOptions) execute(ctx context.Context) error {
	if !o.lock.TryLock() {
		return errors.New("run already in progress")
	}
	defer o.lock.Unlock()

	log := logger.FromContext(ctx).WithName(runLoggerName)

	checkpoints, err := o.checkpointGetter()
	if err != nil {
		return err
	}
	defer func() {
		if err := checkpoints.Close(); err != nil {
			log.Warn("error closing checkpoint store", "error", err)
		}
	}()

	factoryOptions := pipeline.FactoryOptions{
		LocalOutput: o.localOutput,
		BatchWrite:  o.batchWrite,
		Trace:       o.trace,
		Checkpoints: checkpoints,
	}

	pipelines := make([]*pipeline.Pipeline, 0, len(o.transfers))
	defer func() { closePipelines(ctx, pipelines) }()
	for _, cfg := range o.transfers {
		p, err := pipeline.NewFromConfig(cfg, factoryOptions)
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}

	var errs error
	for _, p := range pipelines {
		if ctx.Err() != nil {
			break
		}

		log.Info("running transfer", "transfer", p.Name())
		stats, err := p.Sync(ctx, o.resumeToken)
		o.printStats(p.Name(), stats)
		if err != nil {
			log.Error("transfer failed", "transfer", p.Name(), "error", err)
			errs = errors.Join(errs, err)
		}
	}

	if errs != nil {
		return errs
	}

	return ctx.Err()
}

func (o *runOptions) printStats(name string, stats transfer.StatsSnapshot) {
	if o.statsOutput == nil {
		return
	}

	fmt.Fprintf(o.statsOutput, "transfer %s\n", name)
	_ = stats.WritePretty(o.statsOutput) // nothing to do if the output is gone
}
