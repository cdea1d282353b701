// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transfer

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Status describes the lifecycle step reached by a Stats accumulator.
type Status string

const (
	StatusSetup     Status = "setup"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TimeTag is an opaque monotonic instant returned by Stats.TimeTag.
type TimeTag struct {
	t time.Time
}

// Stats accumulates counters and timers for a single process run.
// All methods are safe to call from multiple goroutines, so a snapshot can be read while a run
// is still in flight.
type Stats struct {
	mu sync.Mutex

	status      Status
	startedAt   time.Time
	completedAt time.Time
	elapsed     time.Duration

	durLoad      time.Duration
	durTransform time.Duration
	durWrite     time.Duration

	batches         int
	rowsFiltered    int
	rowsTransformed int
	rowsLoaded      int
	rowsWritten     int

	// now returns the current time, its monotonic reading is used for every duration.
	now func() time.Time
}

// StatsSnapshot is an immutable point in time copy of a Stats accumulator.
type StatsSnapshot struct {
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
	// Elapsed is the total run duration, set when the run completes.
	Elapsed time.Duration `json:"elapsed"`

	// LoadDuration, TransformDuration and WriteDuration are cumulative across the whole run.
	LoadDuration      time.Duration `json:"loadDuration"`
	TransformDuration time.Duration `json:"transformDuration"`
	WriteDuration     time.Duration `json:"writeDuration"`

	// Batches is the number of completed run cycles.
	Batches         int `json:"batches"`
	RowsFiltered    int `json:"rowsFiltered"`
	RowsTransformed int `json:"rowsTransformed"`
	RowsLoaded      int `json:"rowsLoaded"`
	RowsWritten     int `json:"rowsWritten"`
}

// NewStats returns an accumulator in the setup status.
func NewStats() *Stats {
	return &Stats{
		status: StatusSetup,
		now:    time.Now,
	}
}

// MarkStarted records the start of the run.
func (s *Stats) MarkStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = s.now()
	s.status = StatusRunning
}

// MarkCompleted records the end of a successful run and computes the total elapsed time.
func (s *Stats) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedAt = s.now()
	s.status = StatusCompleted
	s.elapsed = s.completedAt.Sub(s.startedAt)
}

// MarkFailed records that the run stopped on an error. Counters keep the values reached so far.
func (s *Stats) MarkFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
}

// TimeTag returns the current monotonic instant, to be passed later to one of the Has methods.
func (s *Stats) TimeTag() TimeTag {
	return TimeTag{t: s.now()}
}

// BatchEnded increments the batch counter, once per run cycle.
func (s *Stats) BatchEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
}

// HasFiltered counts a record rejected by the filter.
func (s *Stats) HasFiltered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsFiltered++
}

// HasTransformed counts a processed record and charges the time since start to the transform bucket.
func (s *Stats) HasTransformed(start TimeTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsTransformed++
	s.durTransform += s.since(start)
}

// HasLoaded counts count loaded records and charges the time since start to the load bucket.
func (s *Stats) HasLoaded(count int, start TimeTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsLoaded += count
	s.durLoad += s.since(start)
}

// HasWritten counts count written records and charges the time since start to the write bucket.
func (s *Stats) HasWritten(count int, start TimeTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowsWritten += count
	s.durWrite += s.since(start)
}

// since returns the elapsed time from start rounded to the microsecond. Must be called with the lock held.
func (s *Stats) since(start TimeTag) time.Duration {
	return s.now().Sub(start.t).Round(time.Microsecond)
}

// Snapshot returns a copy of the current values.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Status:            s.status,
		StartedAt:         s.startedAt,
		CompletedAt:       s.completedAt,
		Elapsed:           s.elapsed,
		LoadDuration:      s.durLoad,
		TransformDuration: s.durTransform,
		WriteDuration:     s.durWrite,
		Batches:           s.batches,
		RowsFiltered:      s.rowsFiltered,
		RowsTransformed:   s.rowsTransformed,
		RowsLoaded:        s.rowsLoaded,
		RowsWritten:       s.rowsWritten,
	}
}

// String renders the snapshot as a human readable multi line dump.
func (s StatsSnapshot) String() string {
	builder := new(strings.Builder)
	fmt.Fprintf(builder, "status:         %s\n", s.Status)
	fmt.Fprintf(builder, "batches:        %d\n", s.Batches)
	fmt.Fprintf(builder, "rows loaded:    %d\n", s.RowsLoaded)
	fmt.Fprintf(builder, "rows filtered:  %d\n", s.RowsFiltered)
	fmt.Fprintf(builder, "rows written:   %d\n", s.RowsWritten)
	fmt.Fprintf(builder, "dur. load:      %dms\n", millis(s.LoadDuration))
	fmt.Fprintf(builder, "dur. transform: %dms\n", millis(s.TransformDuration))
	fmt.Fprintf(builder, "dur. write:     %dms\n", millis(s.WriteDuration))
	fmt.Fprintf(builder, "elapsed:        %dms\n", millis(s.Elapsed))
	return builder.String()
}

// WritePretty writes the String representation of the snapshot to w.
func (s StatsSnapshot) WritePretty(w io.Writer) error {
	_, err := io.WriteString(w, s.String())
	return err
}

// millis converts d to milliseconds, rounding to the nearest one.
func millis(d time.Duration) int64 {
	return d.Round(time.Millisecond).Milliseconds()
}
