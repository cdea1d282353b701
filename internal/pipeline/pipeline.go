// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/mia-platform/transfer/internal/checkpoint"
	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/mapper"
	"github.com/mia-platform/transfer/internal/source"
	"github.com/mia-platform/transfer/internal/transfer"
)

const (
	loggerName = "transfer:pipeline"
)

// DataMapper couples a mapper with the catalog coordinates of the items it produces.
type DataMapper struct {
	APIVersion string
	ItemFamily string
	Mapper     mapper.Mapper
}

// Config holds the optional settings of a Pipeline.
type Config struct {
	// BatchWrite is the number of records handed to a single destination write.
	BatchWrite int
	// Trace is attached to every progress event; a new ksuid is generated for every run when empty.
	Trace string
	// Filter discards upserted records whose values do not match it.
	Filter mapper.Filter
	// Checkpoints keeps the resume token between runs; nothing is remembered when nil.
	Checkpoints checkpoint.Store
}

type pipelineProcess = transfer.Process[string, source.Data, *destination.Data, source.Loader, destination.Sender]

// Pipeline transfers the records of a source to a destination.
type Pipeline struct {
	name        string
	source      source.Loader
	mappers     map[string]DataMapper
	destination destination.Sender
	config      Config

	lock    sync.Mutex
	process *pipelineProcess
	running bool
}

// New returns a Pipeline named name. The name keys the stored checkpoints.
func New(name string, source source.Loader, mappers map[string]DataMapper, destination destination.Sender, config Config) *Pipeline {
	if config.Checkpoints == nil {
		config.Checkpoints = checkpoint.NopStore()
	}

	return &Pipeline{
		name:        name,
		source:      source,
		mappers:     mappers,
		destination: destination,
		config:      config,
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Destination returns the destination records are written to.
func (p *Pipeline) Destination() destination.Sender {
	return p.destination
}

// Sync runs a complete transfer. When resumeToken is empty the run restarts from the stored
// checkpoint, if any. The checkpoint is removed once the source is exhausted.
func (p *Pipeline) Sync(ctx context.Context, resumeToken string) (transfer.StatsSnapshot, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	p.lock.Lock()
	if p.running {
		p.lock.Unlock()
		return transfer.StatsSnapshot{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, p.name)
	}

	trace := p.config.Trace
	if trace == "" {
		trace = ksuid.New().String()
	}

	t := transfer.New[source.Data, *destination.Data](p.source, p.destination, p.transform)
	opts := transfer.Options{BatchWrite: p.config.BatchWrite, Trace: trace}
	process := transfer.NewProcess[string](t, opts, p.beforeRun(resumeToken), transfer.NewLoggerProgress[string](log.With("transfer", p.name))).
		Filter(p.filter).
		OnLoad(p.load).
		OnBeforeWrite(p.beforeWrite).
		OnWrite(write)

	p.process = process
	p.running = true
	p.lock.Unlock()

	defer func() {
		p.lock.Lock()
		p.running = false
		p.lock.Unlock()
	}()

	log.Info("transfer started", "transfer", p.name, "trace", trace)
	stats, err := process.Start(ctx)
	if err != nil {
		log.Error("transfer failed", "transfer", p.name, "trace", trace, "error", err)
		return stats, err
	}

	if err := p.config.Checkpoints.Save(ctx, p.name, ""); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}

	log.Info("transfer completed", "transfer", p.name, "trace", trace, "rowsWritten", stats.RowsWritten)
	return stats, nil
}

// Stats returns the statistics of the running or last run; ok is false when Sync was never called.
func (p *Pipeline) Stats() (stats transfer.StatsSnapshot, ok bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.process == nil {
		return transfer.StatsSnapshot{}, false
	}

	return p.process.Stats(), true
}

// Close releases the source and the destination when they hold resources.
func (p *Pipeline) Close(ctx context.Context, timeout time.Duration) error {
	log := logger.FromContext(ctx).WithName(loggerName)

	var errs error
	if closable, ok := p.source.(source.ClosableSource); ok {
		log.Debug("closing source", "transfer", p.name)
		errs = errors.Join(errs, closable.Close(ctx, timeout))
	}

	if closable, ok := p.destination.(destination.ClosableSender); ok {
		log.Debug("closing destination", "transfer", p.name)
		closeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		errs = errors.Join(errs, closable.Close(closeCtx))
	}

	return errs
}

func (p *Pipeline) beforeRun(resumeToken string) transfer.BeforeRunFunc[source.Loader, destination.Sender, string] {
	return func(ctx context.Context, _ source.Loader, _ destination.Sender) (string, error) {
		if resumeToken != "" {
			return resumeToken, nil
		}

		token, err := p.config.Checkpoints.Load(ctx, p.name)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}

		if token != "" {
			logger.FromContext(ctx).WithName(loggerName).Info("resuming from checkpoint", "transfer", p.name, "resumeToken", token)
		}
		return token, nil
	}
}

// load stores resumeToken as checkpoint before loading its page: receiving it means every record of
// the previous pages has been written.
func (p *Pipeline) load(ctx context.Context, loader source.Loader, resumeToken string, _ transfer.Options) (transfer.LoadResult[source.Data, string], error) {
	if resumeToken != "" {
		if err := p.config.Checkpoints.Save(ctx, p.name, resumeToken); err != nil {
			return transfer.LoadResult[source.Data, string]{}, fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}
	}

	page, err := loader.Load(ctx, resumeToken)
	if err != nil || page == nil {
		return transfer.LoadResult[source.Data, string]{}, err
	}

	return transfer.LoadResult[source.Data, string]{
		Rows:        page.Data,
		ResumeToken: page.ResumeToken,
	}, nil
}

// filter drops records of unmapped types, then applies the configured filter to upserts.
func (p *Pipeline) filter(ctx context.Context, data source.Data) (bool, error) {
	if _, ok := p.mappers[data.Type]; !ok {
		logger.FromContext(ctx).WithName(loggerName).Trace("data type not mapped, skipping", "type", data.Type)
		return false, nil
	}

	if p.config.Filter == nil || data.Operation == source.DataOperationDelete {
		return true, nil
	}

	keep, err := p.config.Filter.Match(data.Values)
	if err != nil {
		return false, fmt.Errorf("filter on type %q: %w", data.Type, err)
	}

	return keep, nil
}

func (p *Pipeline) transform(_ context.Context, data source.Data) (*destination.Data, error) {
	dataMapper := p.mappers[data.Type]
	output := &destination.Data{
		APIVersion: dataMapper.APIVersion,
		ItemFamily: dataMapper.ItemFamily,
	}

	if !data.Time.IsZero() {
		output.OperationTime = data.Time.UTC().Format(time.RFC3339)
	}

	if data.Operation == source.DataOperationDelete {
		identifier, err := dataMapper.Mapper.ApplyIdentifierTemplate(data.Values)
		if err != nil {
			return nil, fmt.Errorf("mapping type %q: %w", data.Type, err)
		}
		output.Name = identifier
		return output, nil
	}

	mapped, err := dataMapper.Mapper.ApplyTemplates(data.Values)
	if err != nil {
		return nil, fmt.Errorf("mapping type %q: %w", data.Type, err)
	}

	output.Name = mapped.Identifier
	output.Data = mapped.Spec
	if output.Data == nil {
		output.Data = map[string]any{}
	}

	return output, nil
}

func (p *Pipeline) beforeWrite(ctx context.Context, _ transfer.Options, resumeToken string, rows []*destination.Data) (string, error) {
	logger.FromContext(ctx).WithName(loggerName).Debug("writing page", "transfer", p.name, "records", len(rows), "nextResumeToken", resumeToken)
	return "", nil
}

// write hands the whole batch to a BatchSender, or sends its records one by one.
func write(ctx context.Context, sender destination.Sender, batch []*destination.Data, _ transfer.Options) error {
	if batchSender, ok := sender.(destination.BatchSender); ok {
		return batchSender.SendBatch(ctx, batch)
	}

	for _, data := range batch {
		var err error
		if data.IsDelete() {
			err = sender.DeleteData(ctx, data)
		} else {
			err = sender.SendData(ctx, data)
		}

		if err != nil {
			return err
		}
	}

	return nil
}
