package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/provider"
)

func newTestEngine(st *mockStore, prov *mockProvider, opts Options) *Engine {
	if opts.ModelSets == nil {
		opts.ModelSets = &ModelSetConfig{
			Full:     []string{"ChatGPT", "Claude", "Perplexity"},
			Fallback: []string{"ChatGPT"},
		}
	}
	if opts.BatchPause == 0 {
		opts.BatchPause = time.Millisecond
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 100 * time.Millisecond
	}
	if opts.ScoreTimeout == 0 {
		opts.ScoreTimeout = 100 * time.Millisecond
	}
	return New(st, prov, opts)
}

func TestEngine_FreshRunEmitsAllResults(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 6, run.Units())

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	results := sink.byType(EventResult)
	assert.Len(t, results, 6)
	for _, ev := range results {
		assert.False(t, ev.Result.Cached)
	}
	assert.Equal(t, 6, prov.queries())

	// 6 units fit one batch, so the only stats event is the final
	// comprehensive snapshot.
	stats := sink.byType(EventStats)
	require.Len(t, stats, 1)
	assert.Equal(t, 6, stats[0].Stats.TotalResults)
	assert.NotEmpty(t, stats[0].Stats.PerModel)

	completes := sink.byType(EventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 6, completes[0].Complete.TotalUnits)
	assert.Equal(t, 6, completes[0].Complete.FreshResults)
	assert.Equal(t, 0, completes[0].Complete.CachedReplay)

	// Terminal event is last.
	assert.Equal(t, EventComplete, lastEvent(sink).Type)
}

func TestEngine_CompleteRunReplaysFromCache(t *testing.T) {
	st := newMockStore()
	for _, p := range st.phrases {
		for _, m := range []string{"ChatGPT", "Claude", "Perplexity"} {
			st.seedResult(p.ID, m, 55)
		}
	}
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	// Zero provider traffic, identical scores replayed.
	assert.Equal(t, 0, prov.queries())
	results := sink.byType(EventResult)
	assert.Len(t, results, 6)
	for _, ev := range results {
		assert.True(t, ev.Result.Cached)
		assert.Equal(t, 55.0, ev.Result.Result.Scores.Overall)
	}

	completes := sink.byType(EventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 0, completes[0].Complete.FreshResults)
	assert.Equal(t, 6, completes[0].Complete.CachedReplay)
}

func TestEngine_PartialCacheMixesFreshAndReplay(t *testing.T) {
	st := newMockStore()
	st.seedResult(10, "ChatGPT", 55)
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	assert.Equal(t, 5, prov.queries())
	var cached, fresh int
	for _, ev := range sink.byType(EventResult) {
		if ev.Result.Cached {
			cached++
		} else {
			fresh++
		}
	}
	assert.Equal(t, 1, cached)
	assert.Equal(t, 5, fresh)
}

func TestEngine_FullyCoveredPhraseReplaysBeforeFreshWork(t *testing.T) {
	st := newMockStore()
	for _, m := range []string{"ChatGPT", "Claude", "Perplexity"} {
		st.seedResult(10, m, 55)
	}
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	// Only phrase 11 reaches the providers.
	assert.Equal(t, 3, prov.queries())

	// Phrase 10's stored results replay in full before the first fresh
	// result is produced.
	var sawFresh bool
	var replayed, fresh int
	for _, ev := range sink.byType(EventResult) {
		if ev.Result.Cached {
			replayed++
			assert.False(t, sawFresh, "cached replay emitted after fresh work started")
			assert.Equal(t, int64(10), ev.Result.Result.PhraseID)
		} else {
			sawFresh = true
			fresh++
			assert.Equal(t, int64(11), ev.Result.Result.PhraseID)
		}
	}
	assert.Equal(t, 3, replayed)
	assert.Equal(t, 3, fresh)

	completes := sink.byType(EventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 3, completes[0].Complete.FreshResults)
	assert.Equal(t, 3, completes[0].Complete.CachedReplay)
}

func TestEngine_RerunIsIdempotent(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, run.Execute(context.Background(), &collectSink{}))
	firstCalls := prov.queries()

	run2, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)
	sink := &collectSink{}
	require.NoError(t, run2.Execute(context.Background(), sink))

	// Second run issues no new provider calls.
	assert.Equal(t, firstCalls, prov.queries())
	assert.Len(t, sink.byType(EventResult), 6)
}

func TestEngine_PrepareRejectsUnknownDomain(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	_, err := eng.Prepare(context.Background(), 99)
	assert.ErrorIs(t, err, ErrInvalidDomain)
	assert.Equal(t, 0, prov.queries())
}

func TestEngine_PrepareRejectsEmptyPhraseSet(t *testing.T) {
	st := newMockStore()
	st.phrases = nil
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	_, err := eng.Prepare(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoPhrases)
}

func TestEngine_PrepareRejectsOversizedRun(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{MaxUnits: 5})

	_, err := eng.Prepare(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTooManyUnits)
	assert.Equal(t, 0, prov.queries())
}

func TestEngine_GateRejectsConcurrentRunAndReleases(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{ConcurrencyCap: 1})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	_, err = eng.Prepare(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRateLimited)

	require.NoError(t, run.Execute(context.Background(), &collectSink{}))

	// Slot is freed after the run finishes.
	_, err = eng.Prepare(context.Background(), 1)
	assert.NoError(t, err)
}

func TestEngine_DegradedDomainSkipsNonFallbackModels(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{TimeoutThreshold: 3})
	eng.tracker.RecordTimeout(1)
	eng.tracker.RecordTimeout(1)
	eng.tracker.RecordTimeout(1)

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)
	// Units are still built against the full set.
	assert.Equal(t, 6, run.Units())

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	// Only the fallback model (ChatGPT) executed: one unit per phrase.
	results := sink.byType(EventResult)
	assert.Len(t, results, 2)
	for _, ev := range results {
		assert.Equal(t, "ChatGPT", ev.Result.Result.Model)
	}
	assert.Equal(t, 2, prov.queries())

	// Skipped units still show up as progress messages.
	var skips int
	for _, ev := range sink.byType(EventProgress) {
		if ev.Progress.Message != "" && ev.Progress.Progress >= 0 {
			skips++
		}
	}
	assert.GreaterOrEqual(t, skips, 4)
}

func TestEngine_AllTimeoutsStillCompletes(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	prov.queryFn = func(ctx context.Context, req provider.QueryRequest) (*provider.QueryResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	eng := newTestEngine(st, prov, Options{QueryTimeout: 20 * time.Millisecond})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	// No results, but every attempt is visible as a progress message and
	// the run still terminates with stats and complete.
	assert.Empty(t, sink.byType(EventResult))
	// starting message plus one line per unit (timed out or skipped).
	assert.Len(t, sink.byType(EventProgress), 7)

	stats := sink.byType(EventStats)
	require.Len(t, stats, 1)
	assert.Equal(t, 0, stats[0].Stats.TotalResults)
	assert.Equal(t, 0.0, stats[0].Stats.Overall.PresenceRate)

	require.Len(t, sink.byType(EventComplete), 1)
	assert.GreaterOrEqual(t, eng.tracker.Count(1), 1)
}

func TestEngine_SavesComprehensiveSnapshot(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, run.Execute(context.Background(), &collectSink{}))

	require.Len(t, st.snapshots, 1)
	snap := st.snapshots[0]
	assert.Equal(t, int64(1), snap.DomainID)
	assert.Equal(t, 6, snap.TotalResults)
	assert.Len(t, snap.PerModel, 3)
}

func TestEngine_SnapshotFailureDoesNotFailRun(t *testing.T) {
	st := newMockStore()
	st.snapshotErr = assert.AnError
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))
	assert.Len(t, sink.byType(EventComplete), 1)
}

func TestEngine_UnitFailureIsContained(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	prov.queryFn = func(ctx context.Context, req provider.QueryRequest) (*provider.QueryResponse, error) {
		if req.Model == "Claude" {
			return nil, assert.AnError
		}
		return &provider.QueryResponse{Text: "acme.com is great"}, nil
	}
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	assert.Len(t, sink.byType(EventResult), 4)
	errs := sink.byType(EventError)
	assert.Len(t, errs, 2)
	for _, ev := range errs {
		assert.False(t, ev.Error.Fatal)
		assert.Equal(t, "Claude", ev.Error.Model)
	}
	// The run still terminates normally.
	assert.Len(t, sink.byType(EventComplete), 1)
}

func TestEngine_CancelledRunStopsAndReleasesGate(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{ConcurrencyCap: 1})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = run.Execute(ctx, &collectSink{})
	assert.Error(t, err)

	_, err = eng.Prepare(context.Background(), 1)
	assert.NoError(t, err)
}

func TestEngine_FinalResultPercentReaches100(t *testing.T) {
	st := newMockStore()
	prov := newMockProvider()
	eng := newTestEngine(st, prov, Options{})

	run, err := eng.Prepare(context.Background(), 1)
	require.NoError(t, err)

	sink := &collectSink{}
	require.NoError(t, run.Execute(context.Background(), sink))

	results := sink.byType(EventResult)
	require.NotEmpty(t, results)
	var max float64
	for _, ev := range results {
		if ev.Result.Percent > max {
			max = ev.Result.Percent
		}
	}
	assert.InDelta(t, 100, max, 0.01)
}

func lastEvent(c *collectSink) Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}
