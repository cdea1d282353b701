// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transfer

import (
	"context"
	"fmt"
	"sync"
)

// State is the lifecycle state of a Process.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Process is a single execution of a Transfer. R is the resume token type and its zero value
// signals the end of the data.
//
// A Process runs at most once: Start on a process that has already left StateIdle returns
// ErrAlreadyStarted and leaves its statistics untouched. Create a new one with NewProcess for every run.
type Process[R comparable, LD, WD, L, W any] struct {
	transfer  *Transfer[LD, WD, L, W]
	opts      Options
	beforeRun BeforeRunFunc[L, W, R]
	progress  ProgressLogger[R]
	stats     *Stats

	filter      FilterFunc[LD]
	load        LoadFunc[LD, L, R]
	beforeWrite BeforeWriteFunc[WD, R]
	write       WriteFunc[WD, W]

	stateLock sync.RWMutex
	state     State
}

// NewProcess returns a new idle process for t. beforeRun and progress are optional.
func NewProcess[R comparable, LD, WD, L, W any](t *Transfer[LD, WD, L, W], opts Options, beforeRun BeforeRunFunc[L, W, R], progress ProgressLogger[R]) *Process[R, LD, WD, L, W] {
	if progress == nil {
		progress = nopProgress[R]{}
	}

	return &Process[R, LD, WD, L, W]{
		transfer:  t,
		opts:      opts,
		beforeRun: beforeRun,
		progress:  progress,
		stats:     NewStats(),
		state:     StateIdle,
	}
}

// Filter sets the function used to discard loaded records before the transform step.
func (p *Process[R, LD, WD, L, W]) Filter(filter FilterFunc[LD]) *Process[R, LD, WD, L, W] {
	p.filter = filter
	return p
}

// OnLoad sets the function used to fetch records; it is required.
func (p *Process[R, LD, WD, L, W]) OnLoad(load LoadFunc[LD, L, R]) *Process[R, LD, WD, L, W] {
	p.load = load
	return p
}

// OnBeforeWrite sets the hook called between the transform and the write steps.
func (p *Process[R, LD, WD, L, W]) OnBeforeWrite(beforeWrite BeforeWriteFunc[WD, R]) *Process[R, LD, WD, L, W] {
	p.beforeWrite = beforeWrite
	return p
}

// OnWrite sets the function used to write every batch; it is required.
func (p *Process[R, LD, WD, L, W]) OnWrite(write WriteFunc[WD, W]) *Process[R, LD, WD, L, W] {
	p.write = write
	return p
}

// State returns the current lifecycle state.
func (p *Process[R, LD, WD, L, W]) State() State {
	p.stateLock.RLock()
	defer p.stateLock.RUnlock()
	return p.state
}

// Stats returns a snapshot of the statistics collected so far; it can be called while the process
// is running.
func (p *Process[R, LD, WD, L, W]) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// begin moves an idle process to StateRunning and reports whether it did.
func (p *Process[R, LD, WD, L, W]) begin() bool {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	if p.state != StateIdle {
		return false
	}
	p.state = StateRunning
	return true
}

func (p *Process[R, LD, WD, L, W]) setState(state State) {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	p.state = state
}

// Start runs cycles until the load function returns a zero resume token and returns the final
// statistics. On error the statistics collected until the failure are returned with it.
func (p *Process[R, LD, WD, L, W]) Start(ctx context.Context) (StatsSnapshot, error) {
	if p.load == nil {
		return p.stats.Snapshot(), errMissingLoad
	}
	if p.write == nil {
		return p.stats.Snapshot(), errMissingWrite
	}
	if !p.begin() {
		return p.stats.Snapshot(), ErrAlreadyStarted
	}

	p.stats.MarkStarted()

	var token R
	p.emit(ctx, " > transfer starting...", PhaseStart, token)

	if p.beforeRun != nil {
		var err error
		if token, err = p.beforeRun(ctx, p.transfer.loader, p.transfer.writer); err != nil {
			return p.fail(wrap(ErrHook, err))
		}
	}

	var zero R
	for {
		next, err := p.runCycle(ctx, token)
		if err != nil {
			return p.fail(err)
		}
		if next == zero {
			break
		}
		token = next
	}

	p.emit(ctx, "   ✓ transfer ended.", PhaseEnd, zero)
	p.stats.MarkCompleted()
	p.setState(StateCompleted)
	return p.stats.Snapshot(), nil
}

func (p *Process[R, LD, WD, L, W]) fail(err error) (StatsSnapshot, error) {
	p.stats.MarkFailed()
	p.setState(StateFailed)
	return p.stats.Snapshot(), err
}

// runCycle executes a single load, filter, transform, write sequence and returns the token for
// the next cycle.
func (p *Process[R, LD, WD, L, W]) runCycle(ctx context.Context, token R) (R, error) {
	var zero R

	p.emit(ctx, "     loading ...", PhaseLoadStart, token)
	loadTag := p.stats.TimeTag()
	result, err := p.load(ctx, p.transfer.loader, token, p.opts)
	if err != nil {
		return zero, wrap(ErrSource, err)
	}
	p.stats.HasLoaded(len(result.Rows), loadTag)
	p.emit(ctx, fmt.Sprintf("     loaded rows: %d", len(result.Rows)), PhaseLoadEnd, token)

	transformed := make([]WD, 0, len(result.Rows))
	filteredOut := 0
	for _, row := range result.Rows {
		tag := p.stats.TimeTag()
		if p.filter != nil {
			keep, err := p.filter(ctx, row)
			if err != nil {
				return zero, wrap(ErrTransform, err)
			}
			if !keep {
				filteredOut++
				p.stats.HasFiltered()
				p.stats.HasTransformed(tag)
				continue
			}
		}

		out, err := p.transfer.transform(ctx, row)
		if err != nil {
			return zero, wrap(ErrTransform, err)
		}
		transformed = append(transformed, out)
		p.stats.HasTransformed(tag)
	}
	p.emit(ctx, fmt.Sprintf("     filtered out: %d", filteredOut), PhaseTransformEnd, token)

	next := result.ResumeToken
	if p.beforeWrite != nil {
		hookToken, err := p.beforeWrite(ctx, p.opts, result.ResumeToken, transformed)
		if err != nil {
			return zero, wrap(ErrHook, err)
		}
		if hookToken != zero {
			next = hookToken
		}
	}

	if len(transformed) > 0 {
		size := p.opts.batchSize()
		for start := 0; start < len(transformed); start += size {
			end := min(start+size, len(transformed))
			writeTag := p.stats.TimeTag()
			if err := p.write(ctx, p.transfer.writer, transformed[start:end], p.opts); err != nil {
				return zero, wrap(ErrSink, err)
			}
			p.stats.HasWritten(end-start, writeTag)
		}
		p.emit(ctx, fmt.Sprintf("     written: %d", len(transformed)), PhaseWriteEnd, token)
	}

	snapshot := p.stats.Snapshot()
	message := fmt.Sprintf("     batch: %2d .. loaded: %3d .. written: %3d", snapshot.Batches, snapshot.RowsLoaded, snapshot.RowsWritten)
	p.emit(ctx, message, PhaseBatchEnd, next)
	p.stats.BatchEnded()

	return next, nil
}

func (p *Process[R, LD, WD, L, W]) emit(ctx context.Context, message string, phase Phase, token R) {
	p.progress.Progress(ctx, message, Event[R]{
		Trace:       p.opts.Trace,
		Severity:    SeverityInfo,
		Phase:       phase,
		Stats:       p.stats.Snapshot(),
		ResumeToken: token,
	})
}
