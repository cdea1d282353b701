// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transfer

import (
	"context"

	"github.com/mia-platform/transfer/internal/logger"
)

// Phase identifies the point of the run that emitted a progress event.
type Phase string

const (
	PhaseStart        Phase = "start"
	PhaseEnd          Phase = "end"
	PhaseLoadStart    Phase = "load-start"
	PhaseLoadEnd      Phase = "load-end"
	PhaseTransformEnd Phase = "transform-end"
	PhaseWriteEnd     Phase = "write-end"
	PhaseBatchEnd     Phase = "batch-end"
)

// Severity is the importance attached to a progress event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityDefault  Severity = "default"
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is a point in time progress emission. The process keeps no history of the events it emits.
type Event[R any] struct {
	Trace    string
	Severity Severity
	Phase    Phase
	Stats    StatsSnapshot
	// ResumeToken is the token in use when the event was emitted; for batch-end events it is the
	// token the next load will receive.
	ResumeToken R
}

// ProgressLogger receives the progress events of a process.
type ProgressLogger[R any] interface {
	Progress(ctx context.Context, message string, event Event[R])
}

// ProgressLoggerFunc adapts a plain function to the ProgressLogger interface.
type ProgressLoggerFunc[R any] func(ctx context.Context, message string, event Event[R])

// Progress implements ProgressLogger.
func (f ProgressLoggerFunc[R]) Progress(ctx context.Context, message string, event Event[R]) {
	f(ctx, message, event)
}

// nopProgress discards every event.
type nopProgress[R any] struct{}

func (nopProgress[R]) Progress(context.Context, string, Event[R]) {}

// loggerProgress forwards progress events to a structured logger.
type loggerProgress[R any] struct {
	log logger.Logger
}

// NewLoggerProgress returns a ProgressLogger writing every event on log, mapping the event severity
// to the log level and adding trace, phase, stats and resume token as key/value pairs.
func NewLoggerProgress[R any](log logger.Logger) ProgressLogger[R] {
	return &loggerProgress[R]{log: log}
}

func (l *loggerProgress[R]) Progress(_ context.Context, message string, event Event[R]) {
	args := []interface{}{
		"phase", string(event.Phase),
		"batches", event.Stats.Batches,
		"rowsLoaded", event.Stats.RowsLoaded,
		"rowsFiltered", event.Stats.RowsFiltered,
		"rowsWritten", event.Stats.RowsWritten,
		"resumeToken", event.ResumeToken,
	}
	if event.Trace != "" {
		args = append(args, "trace", event.Trace)
	}

	switch event.Severity {
	case SeverityDebug:
		l.log.Debug(message, args...)
	case SeverityWarn:
		l.log.Warn(message, args...)
	case SeverityError, SeverityCritical:
		l.log.Error(message, args...)
	default:
		l.log.Info(message, args...)
	}
}
