// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID string
}

// pagedLoader serves rows in pages keyed by an integer token, page n+1 is reachable from token n.
type pagedLoader struct {
	pages [][]record
	calls []int
}

func loadPages(_ context.Context, loader *pagedLoader, token int, _ Options) (LoadResult[record, int], error) {
	loader.calls = append(loader.calls, token)
	if token >= len(loader.pages) {
		return LoadResult[record, int]{}, nil
	}

	next := token + 1
	if next == len(loader.pages) {
		next = 0
	}
	return LoadResult[record, int]{Rows: loader.pages[token], ResumeToken: next}, nil
}

type batchWriter struct {
	batches [][]string
}

func writeBatches(_ context.Context, writer *batchWriter, batch []string, _ Options) error {
	ids := make([]string, 0, len(batch))
	ids = append(ids, batch...)
	writer.batches = append(writer.batches, ids)
	return nil
}

func identity(_ context.Context, row record) (string, error) {
	return row.ID, nil
}

type recordedEvent struct {
	message string
	event   Event[int]
}

type eventRecorder struct {
	lock   sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Progress(_ context.Context, message string, event Event[int]) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, recordedEvent{message: message, event: event})
}

func (r *eventRecorder) phases() []Phase {
	r.lock.Lock()
	defer r.lock.Unlock()
	phases := make([]Phase, 0, len(r.events))
	for _, e := range r.events {
		phases = append(phases, e.event.Phase)
	}
	return phases
}

func rows(ids ...string) []record {
	out := make([]record, 0, len(ids))
	for _, id := range ids {
		out = append(out, record{ID: id})
	}
	return out
}

func newTestProcess(pages [][]record, opts Options, progress ProgressLogger[int]) (*Process[int, record, string, *pagedLoader, *batchWriter], *pagedLoader, *batchWriter) {
	loader := &pagedLoader{pages: pages}
	writer := &batchWriter{}
	process := NewProcess[int](New(loader, writer, identity), opts, nil, progress).
		OnLoad(loadPages).
		OnWrite(writeBatches)
	return process, loader, writer
}

func TestSingleCycleBatching(t *testing.T) {
	t.Parallel()

	process, _, writer := newTestProcess([][]record{rows("a", "b", "c")}, Options{BatchWrite: 2}, nil)
	assert.Equal(t, StateIdle, process.State())

	stats, err := process.Start(t.Context())
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, writer.batches)
	assert.Equal(t, 3, stats.RowsLoaded)
	assert.Equal(t, 3, stats.RowsWritten)
	assert.Equal(t, 3, stats.RowsTransformed)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, StatusCompleted, stats.Status)
	assert.Equal(t, StateCompleted, process.State())
	assert.False(t, stats.CompletedAt.Before(stats.StartedAt))
}

func TestEmptyFirstLoad(t *testing.T) {
	t.Parallel()

	process, loader, writer := newTestProcess(nil, Options{}, nil)

	stats, err := process.Start(t.Context())
	require.NoError(t, err)

	assert.Empty(t, writer.batches)
	assert.Equal(t, []int{0}, loader.calls)
	assert.Equal(t, 0, stats.RowsLoaded)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, StatusCompleted, stats.Status)
}

func TestMissingFunctions(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		setup       func(p *Process[int, record, string, *pagedLoader, *batchWriter], l *pagedLoader, w *batchWriter)
		expectedErr string
	}{
		"missing write function": {
			setup: func(p *Process[int, record, string, *pagedLoader, *batchWriter], _ *pagedLoader, _ *batchWriter) {
				p.OnLoad(loadPages)
			},
			expectedErr: "define a write function",
		},
		"missing load function": {
			setup: func(p *Process[int, record, string, *pagedLoader, *batchWriter], _ *pagedLoader, _ *batchWriter) {
				p.OnWrite(writeBatches)
			},
			expectedErr: "define a load function",
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			loader := &pagedLoader{pages: [][]record{rows("a")}}
			writer := &batchWriter{}
			recorder := &eventRecorder{}
			beforeRunCalled := false
			beforeRun := func(context.Context, *pagedLoader, *batchWriter) (int, error) {
				beforeRunCalled = true
				return 0, nil
			}

			process := NewProcess[int](New(loader, writer, identity), Options{}, beforeRun, recorder)
			test.setup(process, loader, writer)

			stats, err := process.Start(t.Context())
			require.ErrorIs(t, err, ErrConfiguration)
			assert.ErrorContains(t, err, test.expectedErr)
			assert.Empty(t, loader.calls)
			assert.Empty(t, writer.batches)
			assert.Empty(t, recorder.phases())
			assert.False(t, beforeRunCalled)
			assert.Equal(t, StatusSetup, stats.Status)
			assert.Equal(t, StateIdle, process.State())
		})
	}
}

func TestMultiPageRun(t *testing.T) {
	t.Parallel()

	pages := [][]record{rows("a", "b"), rows("c"), rows("d", "e", "f")}
	process, loader, writer := newTestProcess(pages, Options{BatchWrite: 2}, nil)

	stats, err := process.Start(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, loader.calls)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}, {"d", "e"}, {"f"}}, writer.batches)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 6, stats.RowsLoaded)
	assert.Equal(t, 6, stats.RowsWritten)
}

func TestBatchCount(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		rows            int
		batchWrite      int
		expectedBatches int
	}{
		"zero batch size writes one by one":     {rows: 4, batchWrite: 0, expectedBatches: 4},
		"negative batch size writes one by one": {rows: 3, batchWrite: -2, expectedBatches: 3},
		"exact division":                        {rows: 6, batchWrite: 3, expectedBatches: 2},
		"remainder in last batch":               {rows: 7, batchWrite: 3, expectedBatches: 3},
		"batch larger than rows":                {rows: 2, batchWrite: 10, expectedBatches: 1},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ids := make([]string, 0, test.rows)
			for i := range test.rows {
				ids = append(ids, fmt.Sprintf("row-%d", i))
			}

			process, _, writer := newTestProcess([][]record{rows(ids...)}, Options{BatchWrite: test.batchWrite}, nil)
			stats, err := process.Start(t.Context())
			require.NoError(t, err)

			assert.Len(t, writer.batches, test.expectedBatches)
			written := make([]string, 0, test.rows)
			for _, batch := range writer.batches {
				written = append(written, batch...)
			}
			assert.Equal(t, ids, written)
			assert.Equal(t, test.rows, stats.RowsWritten)
		})
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	t.Run("filter keeps a subset in order", func(t *testing.T) {
		t.Parallel()

		process, _, writer := newTestProcess([][]record{rows("a", "skip-1", "b", "skip-2", "c")}, Options{BatchWrite: 10}, nil)
		process.Filter(func(_ context.Context, row record) (bool, error) {
			return !strings.HasPrefix(row.ID, "skip"), nil
		})

		stats, err := process.Start(t.Context())
		require.NoError(t, err)

		assert.Equal(t, [][]string{{"a", "b", "c"}}, writer.batches)
		assert.Equal(t, 5, stats.RowsLoaded)
		assert.Equal(t, 5, stats.RowsTransformed)
		assert.Equal(t, 2, stats.RowsFiltered)
		assert.Equal(t, 3, stats.RowsWritten)
	})

	t.Run("filter rejecting everything never writes", func(t *testing.T) {
		t.Parallel()

		recorder := &eventRecorder{}
		process, _, writer := newTestProcess([][]record{rows("a", "b"), rows("c")}, Options{}, recorder)
		process.Filter(func(context.Context, record) (bool, error) { return false, nil })

		stats, err := process.Start(t.Context())
		require.NoError(t, err)

		assert.Empty(t, writer.batches)
		assert.Equal(t, 0, stats.RowsWritten)
		assert.Equal(t, 3, stats.RowsFiltered)
		assert.Equal(t, 2, stats.Batches)
		assert.NotContains(t, recorder.phases(), PhaseWriteEnd)
	})

	t.Run("last filter set wins", func(t *testing.T) {
		t.Parallel()

		process, _, writer := newTestProcess([][]record{rows("a", "b")}, Options{BatchWrite: 5}, nil)
		process.
			Filter(func(context.Context, record) (bool, error) { return false, nil }).
			Filter(func(_ context.Context, row record) (bool, error) { return row.ID == "b", nil })

		_, err := process.Start(t.Context())
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"b"}}, writer.batches)
	})
}

func TestBeforeHooks(t *testing.T) {
	t.Parallel()

	t.Run("before run provides the first token", func(t *testing.T) {
		t.Parallel()

		loader := &pagedLoader{pages: [][]record{rows("a"), rows("b"), rows("c")}}
		writer := &batchWriter{}
		beforeRun := func(_ context.Context, l *pagedLoader, w *batchWriter) (int, error) {
			assert.Same(t, loader, l)
			assert.Same(t, writer, w)
			return 2, nil
		}

		process := NewProcess[int](New(loader, writer, identity), Options{}, beforeRun, nil).
			OnLoad(loadPages).
			OnWrite(writeBatches)

		_, err := process.Start(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []int{2}, loader.calls)
		assert.Equal(t, [][]string{{"c"}}, writer.batches)
	})

	t.Run("before write token supersedes the load token", func(t *testing.T) {
		t.Parallel()

		process, loader, _ := newTestProcess([][]record{rows("a"), rows("b"), rows("c")}, Options{}, nil)
		var received [][]string
		process.OnBeforeWrite(func(_ context.Context, _ Options, token int, rows []string) (int, error) {
			received = append(received, rows)
			if token == 1 {
				return 2, nil
			}
			return 0, nil
		})

		stats, err := process.Start(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2}, loader.calls)
		assert.Equal(t, [][]string{{"a"}, {"c"}}, received)
		assert.Equal(t, 2, stats.Batches)
	})

	t.Run("zero before write token keeps the load token", func(t *testing.T) {
		t.Parallel()

		process, loader, _ := newTestProcess([][]record{rows("a"), rows("b")}, Options{}, nil)
		process.OnBeforeWrite(func(context.Context, Options, int, []string) (int, error) {
			return 0, nil
		})

		_, err := process.Start(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, loader.calls)
	})
}

func TestErrors(t *testing.T) {
	t.Parallel()

	failing := errors.New("boom")

	testCases := map[string]struct {
		setup           func(p *Process[int, record, string, *pagedLoader, *batchWriter])
		beforeRun       BeforeRunFunc[*pagedLoader, *batchWriter, int]
		expectedErr     error
		expectedWritten int
	}{
		"load error": {
			setup: func(p *Process[int, record, string, *pagedLoader, *batchWriter]) {
				p.OnLoad(func(context.Context, *pagedLoader, int, Options) (LoadResult[record, int], error) {
					return LoadResult[record, int]{}, failing
				})
			},
			expectedErr: ErrSource,
		},
		"filter error": {
			setup: func(p *Process[int, record, string, *pagedLoader, *batchWriter]) {
				p.Filter(func(context.Context, record) (bool, error) { return false, failing })
			},
			expectedErr: ErrTransform,
		},
		"write error": {
			setup: func(p *Process[int, record, string, *pagedLoader, *batchWriter]) {
				p.OnWrite(func(context.Context, *batchWriter, []string, Options) error { return failing })
			},
			expectedErr: ErrSink,
		},
		"before write error": {
			setup: func(p *Process[int, record, string, *pagedLoader, *batchWriter]) {
				p.OnBeforeWrite(func(context.Context, Options, int, []string) (int, error) { return 0, failing })
			},
			expectedErr: ErrHook,
		},
		"before run error": {
			setup: func(*Process[int, record, string, *pagedLoader, *batchWriter]) {},
			beforeRun: func(context.Context, *pagedLoader, *batchWriter) (int, error) {
				return 0, failing
			},
			expectedErr: ErrHook,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			loader := &pagedLoader{pages: [][]record{rows("a", "b")}}
			writer := &batchWriter{}
			process := NewProcess[int](New(loader, writer, identity), Options{}, test.beforeRun, nil).
				OnLoad(loadPages).
				OnWrite(writeBatches)
			test.setup(process)

			stats, err := process.Start(t.Context())
			require.ErrorIs(t, err, test.expectedErr)
			assert.ErrorIs(t, err, failing)
			assert.Equal(t, StatusFailed, stats.Status)
			assert.Equal(t, StateFailed, process.State())
			assert.Equal(t, test.expectedWritten, stats.RowsWritten)
		})
	}

	t.Run("write error after a written batch of the same cycle", func(t *testing.T) {
		t.Parallel()

		loader := &pagedLoader{pages: [][]record{rows("a", "b", "c")}}
		writer := &batchWriter{}
		writes := 0
		process := NewProcess[int](New(loader, writer, identity), Options{BatchWrite: 1}, nil, nil).
			OnLoad(loadPages).
			OnWrite(func(ctx context.Context, w *batchWriter, batch []string, opts Options) error {
				writes++
				if writes == 2 {
					return failing
				}
				return writeBatches(ctx, w, batch, opts)
			})

		stats, err := process.Start(t.Context())
		require.ErrorIs(t, err, ErrSink)
		assert.ErrorIs(t, err, failing)
		assert.Equal(t, 2, writes)
		assert.Equal(t, 3, stats.RowsLoaded)
		assert.Equal(t, 1, stats.RowsWritten)
		assert.Equal(t, 0, stats.Batches)
		assert.Equal(t, StatusFailed, stats.Status)
		assert.Equal(t, [][]string{{"a"}}, writer.batches)
	})

	t.Run("transform error keeps partial stats", func(t *testing.T) {
		t.Parallel()

		loader := &pagedLoader{pages: [][]record{rows("a"), rows("b", "bad")}}
		writer := &batchWriter{}
		transform := func(_ context.Context, row record) (string, error) {
			if row.ID == "bad" {
				return "", failing
			}
			return row.ID, nil
		}
		process := NewProcess[int](New(loader, writer, transform), Options{}, nil, nil).
			OnLoad(loadPages).
			OnWrite(writeBatches)

		stats, err := process.Start(t.Context())
		require.ErrorIs(t, err, ErrTransform)
		assert.ErrorIs(t, err, failing)
		assert.Equal(t, 1, stats.Batches)
		assert.Equal(t, 3, stats.RowsLoaded)
		assert.Equal(t, 1, stats.RowsWritten)
		assert.Equal(t, [][]string{{"a"}}, writer.batches)
	})
}

func TestStartTwice(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		pages         [][]record
		failingWrite  bool
		expectedState State
	}{
		"after a completed run": {
			pages:         [][]record{rows("a", "b")},
			expectedState: StateCompleted,
		},
		"after a failed run": {
			pages:         [][]record{rows("a", "b")},
			failingWrite:  true,
			expectedState: StateFailed,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			process, loader, writer := newTestProcess(test.pages, Options{}, nil)
			if test.failingWrite {
				process.OnWrite(func(context.Context, *batchWriter, []string, Options) error { return assert.AnError })
			}

			first, _ := process.Start(t.Context())
			second, err := process.Start(t.Context())
			require.ErrorIs(t, err, ErrAlreadyStarted)
			assert.Equal(t, first, second)
			assert.Equal(t, test.expectedState, process.State())
			assert.Len(t, loader.calls, 1)
			if !test.failingWrite {
				assert.Len(t, writer.batches, 1)
			}
		})
	}
}

func TestProgressEvents(t *testing.T) {
	t.Parallel()

	recorder := &eventRecorder{}
	process, _, _ := newTestProcess([][]record{rows("a", "b"), nil}, Options{BatchWrite: 5, Trace: "trace-id"}, recorder)

	_, err := process.Start(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []Phase{
		PhaseStart,
		PhaseLoadStart, PhaseLoadEnd, PhaseTransformEnd, PhaseWriteEnd, PhaseBatchEnd,
		PhaseLoadStart, PhaseLoadEnd, PhaseTransformEnd, PhaseBatchEnd,
		PhaseEnd,
	}, recorder.phases())

	for _, e := range recorder.events {
		assert.Equal(t, "trace-id", e.event.Trace)
		assert.Equal(t, SeverityInfo, e.event.Severity)
	}

	firstBatchEnd := recorder.events[5]
	assert.Equal(t, "     batch:  0 .. loaded:   2 .. written:   2", firstBatchEnd.message)
	assert.Equal(t, 1, firstBatchEnd.event.ResumeToken)
	assert.Equal(t, 0, firstBatchEnd.event.Stats.Batches)

	secondLoadStart := recorder.events[6]
	assert.Equal(t, 1, secondLoadStart.event.ResumeToken)
	assert.Equal(t, "     written: 2", recorder.events[4].message)
	assert.Equal(t, "   ✓ transfer ended.", recorder.events[len(recorder.events)-1].message)
}

func TestProgressLoggerFunc(t *testing.T) {
	t.Parallel()

	var messages []string
	progress := ProgressLoggerFunc[int](func(_ context.Context, message string, _ Event[int]) {
		messages = append(messages, message)
	})

	process, _, _ := newTestProcess(nil, Options{}, progress)
	_, err := process.Start(t.Context())
	require.NoError(t, err)

	assert.Equal(t, " > transfer starting...", messages[0])
	assert.Contains(t, messages, "     loaded rows: 0")
}

func TestProcessesDoNotShareStats(t *testing.T) {
	t.Parallel()

	loader := &pagedLoader{pages: [][]record{rows("a", "b")}}
	writer := &batchWriter{}
	config := New(loader, writer, identity)
	assert.Same(t, loader, config.Loader())
	assert.Same(t, writer, config.Writer())

	first := NewProcess[int](config, Options{}, nil, nil).OnLoad(loadPages).OnWrite(writeBatches)
	second := NewProcess[int](config, Options{}, nil, nil).OnLoad(loadPages).OnWrite(writeBatches)

	_, err := first.Start(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Stats().RowsLoaded)
	assert.Equal(t, 0, second.Stats().RowsLoaded)
	assert.Equal(t, StatusSetup, second.Stats().Status)
}
