// Package engine orchestrates multi-model visibility analysis runs:
// admission, batch scheduling, per-unit execution, caching, and the
// event stream the HTTP layer forwards to clients.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

// Options tunes engine policy. Zero values take the package defaults;
// production uses the defaults, tests shrink the timers.
type Options struct {
	ConcurrencyCap   int
	TimeoutThreshold int
	TrackerReset     time.Duration
	QueryTimeout     time.Duration
	ScoreTimeout     time.Duration
	BatchPause       time.Duration
	MaxUnits         int
	ModelSets        *ModelSetConfig
}

func (o *Options) withDefaults() {
	if o.ConcurrencyCap <= 0 {
		o.ConcurrencyCap = DefaultConcurrencyCap
	}
	if o.TimeoutThreshold <= 0 {
		o.TimeoutThreshold = DefaultTimeoutThreshold
	}
	if o.TrackerReset <= 0 {
		o.TrackerReset = DefaultTrackerReset
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.ScoreTimeout <= 0 {
		o.ScoreTimeout = DefaultScoreTimeout
	}
	if o.BatchPause <= 0 {
		o.BatchPause = DefaultBatchPause
	}
	if o.MaxUnits <= 0 {
		o.MaxUnits = DefaultMaxUnits
	}
	if o.ModelSets == nil {
		sets := DefaultModelSets()
		o.ModelSets = &sets
	}
}

// Engine coordinates analysis runs across domains. One Engine is shared
// by all HTTP requests and CLI invocations in a process.
type Engine struct {
	store    store.Store
	gate     *Gate
	tracker  *TimeoutTracker
	selector *ModelSelector
	agg      *Aggregator
	exec     *executor

	batchPause time.Duration
	maxUnits   int
}

// New creates an engine over the given store and provider layer.
func New(st store.Store, prov Provider, opts Options) *Engine {
	opts.withDefaults()
	tracker := NewTimeoutTracker(opts.TrackerReset)
	return &Engine{
		store:    st,
		gate:     NewGate(opts.ConcurrencyCap),
		tracker:  tracker,
		selector: NewModelSelector(*opts.ModelSets, tracker, opts.TimeoutThreshold),
		agg:      NewAggregator(),
		exec: &executor{
			provider:     prov,
			store:        st,
			tracker:      tracker,
			queryTimeout: opts.QueryTimeout,
			scoreTimeout: opts.ScoreTimeout,
		},
		batchPause: opts.BatchPause,
		maxUnits:   opts.MaxUnits,
	}
}

// Start launches the tracker sweep in the background until ctx is
// cancelled.
func (e *Engine) Start(ctx context.Context) {
	go e.tracker.Start(ctx)
}

// Run is one admitted analysis run. Execute must be called exactly once
// after a successful Prepare; it releases the domain's run slot.
type Run struct {
	eng     *Engine
	domain  *model.Domain
	phrases []model.Phrase
	units   []WorkUnit
}

// Units returns the number of work units in the run.
func (r *Run) Units() int { return len(r.units) }

// OverrideLocation replaces the domain's stored location for this run
// only; the stored domain row is untouched.
func (r *Run) OverrideLocation(location string) {
	if location == "" {
		return
	}
	d := *r.domain
	d.Location = location
	r.domain = &d
}

// Prepare validates the domain, builds the run's work units, and
// reserves a concurrency slot. All rejections happen here, before any
// stream is opened: ErrInvalidDomain, ErrNoPhrases, ErrTooManyUnits,
// and ErrRateLimited.
func (e *Engine) Prepare(ctx context.Context, domainID int64) (*Run, error) {
	domain, err := e.store.GetDomain(ctx, domainID)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load domain")
	}
	if domain == nil {
		return nil, eris.Wrapf(ErrInvalidDomain, "domain %d", domainID)
	}

	phrases, err := e.store.FindSelectedPhrases(ctx, domainID)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load phrases")
	}
	if len(phrases) == 0 {
		return nil, eris.Wrapf(ErrNoPhrases, "domain %d", domainID)
	}

	units := BuildUnits(phrases, e.selector.FullSet())
	if len(units) > e.maxUnits {
		return nil, eris.Wrapf(ErrTooManyUnits, "%d units, limit %d", len(units), e.maxUnits)
	}

	if !e.gate.Admit(domainID) {
		return nil, eris.Wrapf(ErrRateLimited, "domain %d", domainID)
	}
	return &Run{eng: e, domain: domain, phrases: phrases, units: units}, nil
}

// runState serializes event emission and accumulates shared counters
// for one run. Batch workers report through it concurrently.
type runState struct {
	mu    sync.Mutex
	sink  Sink
	total int

	collected []model.QueryResult
	fresh     int
	cached    int
}

func (s *runState) percentLocked() float64 {
	if s.total == 0 {
		return 100
	}
	return float64(s.fresh+s.cached) / float64(s.total) * 100
}

func (s *runState) emitProgress(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Emit(progressEvent(msg, s.percentLocked()))
}

func (s *runState) emitResult(r *model.QueryResult, fromCache bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fromCache {
		s.cached++
	} else {
		s.fresh++
	}
	s.collected = append(s.collected, *r)
	s.sink.Emit(resultEvent(*r, fromCache, s.percentLocked()))
}

func (s *runState) emitUnitError(phraseID int64, modelName, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Emit(unitErrorEvent(phraseID, modelName, msg))
}

func (s *runState) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Emit(ev)
}

func (s *runState) snapshotInput() []model.QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QueryResult, len(s.collected))
	copy(out, s.collected)
	return out
}

// Execute runs all batches and emits the event stream to sink. It
// returns an error only for cancellation or a failed prefetch; unit
// failures are contained and reported as events. The run slot is
// always released on return.
func (r *Run) Execute(ctx context.Context, sink Sink) error {
	e := r.eng
	defer e.gate.Release(r.domain.ID)

	state := &runState{sink: sink, total: len(r.units)}
	state.emit(progressEvent(
		fmt.Sprintf("starting analysis for %s: %d phrases, %d units", r.domain.URL, len(r.phrases), len(r.units)), 0))

	cache, err := NewCompletionCache(ctx, e.store, r.phrases)
	if err != nil {
		return err
	}

	// Phrases with a stored result for every model in the full set replay
	// wholesale before any batch is scheduled; only the rest run.
	complete := make(map[int64]bool, len(r.phrases))
	fullSet := e.selector.FullSet()
	for _, p := range r.phrases {
		done, stored := cache.IsComplete(p.ID, fullSet)
		if !done {
			continue
		}
		complete[p.ID] = true
		for _, res := range stored {
			state.emitResult(res, true)
		}
	}

	pending := r.units
	if len(complete) > 0 {
		pending = slices.DeleteFunc(slices.Clone(r.units), func(u WorkUnit) bool {
			return complete[u.Phrase.ID]
		})
	}

	batches := partition(pending)
	for i, batch := range batches {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "engine: run cancelled")
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, unit := range batch {
			g.Go(func() error {
				r.runUnit(gctx, state, cache, unit)
				return nil
			})
		}
		// Workers never return errors, so Wait only fails on ctx.
		_ = g.Wait()

		// The last batch is followed by the comprehensive snapshot, so
		// intermediate totals are only emitted between batches.
		if i < len(batches)-1 {
			state.emit(statsEvent(e.agg.TotalsOnly(state.snapshotInput())))
			select {
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "engine: run cancelled")
			case <-time.After(e.batchPause):
			}
		}
	}

	if ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), "engine: run cancelled")
	}

	final := e.agg.Comprehensive(r.domain.ID, state.snapshotInput())
	if err := e.store.SaveSnapshot(ctx, final); err != nil {
		zap.L().Error("save visibility snapshot failed",
			zap.Int64("domain_id", r.domain.ID), zap.Error(err))
	}
	state.emit(statsEvent(final))
	state.emit(completeEvent(len(r.units), state.fresh, state.cached))
	return nil
}

// runUnit processes one (phrase, model) unit: selector veto, cache
// replay, then fresh execution. The active model set is re-read here so
// timeouts earlier in the same run degrade later units immediately.
func (r *Run) runUnit(ctx context.Context, state *runState, cache *CompletionCache, unit WorkUnit) {
	e := r.eng

	active := e.selector.Select(r.domain.ID)
	if !slices.Contains(active, unit.Model) {
		state.emitProgress(fmt.Sprintf("skipping %s for %q: provider degraded", unit.Model, unit.Phrase.Text))
		return
	}

	if stored := cache.Result(unit.Phrase.ID, unit.Model); stored != nil {
		state.emitResult(stored, true)
		return
	}

	out, result, err := e.exec.execute(ctx, r.domain, unit)
	switch out {
	case outcomeTimedOut:
		state.emitProgress(fmt.Sprintf("query to %s timed out for %q, skipping", unit.Model, unit.Phrase.Text))
	case outcomeFailed:
		zap.L().Warn("unit failed",
			zap.Int64("phrase_id", unit.Phrase.ID),
			zap.String("model", unit.Model),
			zap.Error(err),
		)
		state.emitUnitError(unit.Phrase.ID, unit.Model,
			fmt.Sprintf("%s query failed for %q", unit.Model, unit.Phrase.Text))
	case outcomeSucceeded:
		cache.Add(result)
		state.emitResult(result, false)
	}
}
