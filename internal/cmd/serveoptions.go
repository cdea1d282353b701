// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mia-platform/transfer/internal/checkpoint"
	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/info"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/pipeline"
	"github.com/mia-platform/transfer/internal/server"
	"github.com/mia-platform/transfer/internal/transfer"
)

const (
	serveLoggerName = "transfer:serve"

	transfersPath = "/transfers"
	transferPath  = "/transfers/:name"
)

// serverGetter returns the server used by the serve command.
// It can be overridden for testing purposes.
var serverGetter = server.NewServer

// serveOptions holds the state of a "serve" invocation.
type serveOptions struct {
	transfers   []*config.TransferConfig
	localOutput io.Writer

	checkpointGetter func() (checkpoint.Store, error)
	serverGetter     func(context.Context) (server.Server, error)
}

// transferStatus is the JSON description of a served transfer.
type transferStatus struct {
	Name        string                  `json:"name"`
	Source      string                  `json:"source"`
	Destination string                  `json:"destination"`
	Stats       *transfer.StatsSnapshot `json:"stats,omitempty"`
}

type runRequest struct {
	ResumeToken string `json:"resumeToken"`
}

// toServeOptions builds a serveOptions instance from the parsed flags.
func (f *flags) toServeOptions(cmd *cobra.Command) (*serveOptions, error) {
	transfers, err := loadTransfers(f.transferPaths)
	if err != nil {
		return nil, err
	}

	if len(transfers) == 0 {
		return nil, fmt.Errorf("%w: no transfer defined in the transfer files", errInvalidArguments)
	}

	return &serveOptions{
		transfers:   transfers,
		localOutput: f.localWriter(cmd),

		checkpointGetter: checkpointGetter,
		serverGetter:     serverGetter,
	}, nil
}

// execute builds every pipeline, registers the routes and serves them until ctx is canceled or
// the process receives SIGINT or SIGTERM.
func (o *serveOptions) execute(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(serveLoggerName)
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checkpoints, err := o.checkpointGetter()
	if err != nil {
		return err
	}
	defer func() {
		if err := checkpoints.Close(); err != nil {
			log.Warn("error closing checkpoint store", "error", err)
		}
	}()

	pipelines := make([]*pipeline.Pipeline, 0, len(o.transfers))
	defer func() { closePipelines(ctx, pipelines) }()
	for _, cfg := range o.transfers {
		p, err := pipeline.NewFromConfig(cfg, pipeline.FactoryOptions{
			LocalOutput: o.localOutput,
			Checkpoints: checkpoints,
		})
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}

	srv, err := o.serverGetter(ctx)
	if err != nil {
		return err
	}

	routes := newTransferRoutes(o.transfers, pipelines)
	srv.AddRoute(http.MethodGet, transfersPath, routes.list)
	srv.AddRoute(http.MethodGet, transferPath, routes.get)
	srv.AddRoute(http.MethodPost, transferPath, routes.run)

	log.Info("starting server", "version", info.ServiceVersionInformation(), "transfers", len(pipelines))
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("stopping server")
		return srv.Stop()
	})

	return group.Wait()
}

// transferRoutes serves the HTTP routes of the configured transfers.
type transferRoutes struct {
	configs   map[string]*config.TransferConfig
	pipelines map[string]*pipeline.Pipeline
	names     []string
}

func newTransferRoutes(configs []*config.TransferConfig, pipelines []*pipeline.Pipeline) *transferRoutes {
	return &transferRoutes{
		configs: lo.KeyBy(configs, func(cfg *config.TransferConfig) string {
			return cfg.Name
		}),
		pipelines: lo.KeyBy(pipelines, func(p *pipeline.Pipeline) string {
			return p.Name()
		}),
		names: lo.Map(pipelines, func(p *pipeline.Pipeline, _ int) string {
			return p.Name()
		}),
	}
}

func (r *transferRoutes) status(name string) transferStatus {
	cfg := r.configs[name]
	status := transferStatus{
		Name:        name,
		Source:      cfg.Source.Type,
		Destination: cfg.Destination.Type,
	}

	if stats, ok := r.pipelines[name].Stats(); ok {
		status.Stats = &stats
	}

	return status
}

func (r *transferRoutes) list(context.Context, map[string]string, []byte) (any, error) {
	return lo.Map(r.names, func(name string, _ int) transferStatus {
		return r.status(name)
	}), nil
}

func (r *transferRoutes) get(_ context.Context, params map[string]string, _ []byte) (any, error) {
	name := params["name"]
	if _, found := r.pipelines[name]; !found {
		return nil, fmt.Errorf("%w: transfer %q", server.ErrNotFound, name)
	}

	return r.status(name), nil
}

func (r *transferRoutes) run(ctx context.Context, params map[string]string, body []byte) (any, error) {
	name := params["name"]
	p, found := r.pipelines[name]
	if !found {
		return nil, fmt.Errorf("%w: transfer %q", server.ErrNotFound, name)
	}

	request := runRequest{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &request); err != nil {
			return nil, fmt.Errorf("%w: %w", server.ErrBadRequest, err)
		}
	}

	stats, err := p.Sync(ctx, request.ResumeToken)
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		return nil, fmt.Errorf("%w: %w", server.ErrConflict, err)
	case err != nil:
		return nil, err
	}

	return stats, nil
}
