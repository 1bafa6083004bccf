package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/provider"
	"github.com/sells-group/visibility-cli/internal/scorer"
	"github.com/sells-group/visibility-cli/internal/store"
)

// Provider is the engine's view of the model layer: one opaque query
// call and one opaque scoring call.
type Provider interface {
	Query(ctx context.Context, req provider.QueryRequest) (*provider.QueryResponse, error)
	Score(ctx context.Context, req provider.ScoreRequest) (*provider.ScoreResponse, error)
}

// outcome classifies one executed unit.
type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeTimedOut
	outcomeFailed
)

// executor runs a single (phrase, model) unit through the two timed
// races: provider query (20s), then scoring (60s).
type executor struct {
	provider Provider
	store    store.Store
	tracker  *TimeoutTracker

	queryTimeout time.Duration
	scoreTimeout time.Duration
}

// execute performs one unit. On success the result has been persisted
// (or replayed from a concurrent writer's row) and is ready to emit.
// A query timeout increments the domain's tracker; a scoring timeout
// falls back to the deterministic heuristic scorer so the unit never
// disappears once a response was obtained.
func (e *executor) execute(ctx context.Context, domain *model.Domain, unit WorkUnit) (outcome, *model.QueryResult, error) {
	qctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Query(qctx, provider.QueryRequest{
		Phrase:    unit.Phrase.Text,
		Model:     unit.Model,
		DomainURL: domain.URL,
		Location:  domain.Location,
		Context:   domain.Context,
	})
	latency := time.Since(start)
	if err != nil {
		if isTimeout(qctx, ctx, err) {
			e.tracker.RecordTimeout(domain.ID)
			return outcomeTimedOut, nil, err
		}
		return outcomeFailed, nil, err
	}

	scores, competitors := e.scoreResponse(ctx, domain, unit, resp.Text)

	result := &model.QueryResult{
		PhraseID:    unit.Phrase.ID,
		DomainID:    domain.ID,
		Model:       unit.Model,
		Response:    resp.Text,
		LatencyMS:   latency.Milliseconds(),
		CostUSD:     resp.CostUSD,
		Scores:      scores,
		Competitors: competitors,
	}

	inserted, err := e.store.CreateResult(ctx, result)
	if err != nil {
		// Best effort: the client still gets the result even if it
		// could not be durably stored.
		zap.L().Error("persist query result failed",
			zap.Int64("phrase_id", unit.Phrase.ID),
			zap.String("model", unit.Model),
			zap.Error(err),
		)
		return outcomeSucceeded, result, nil
	}
	if !inserted {
		// A concurrent run won the (phrase, model) insert; replay the
		// stored row so both streams report identical scores.
		if stored, ferr := e.store.FindResult(ctx, unit.Phrase.ID, unit.Model); ferr == nil && stored != nil {
			return outcomeSucceeded, stored, nil
		}
	}
	return outcomeSucceeded, result, nil
}

// scoreResponse races the model-based scorer against its timeout and
// falls back to the text heuristic on timeout or scorer failure.
func (e *executor) scoreResponse(ctx context.Context, domain *model.Domain, unit WorkUnit, responseText string) (model.ScoreBreakdown, []model.CompetitorMention) {
	sctx, cancel := context.WithTimeout(ctx, e.scoreTimeout)
	defer cancel()

	scored, err := e.provider.Score(sctx, provider.ScoreRequest{
		Phrase:    unit.Phrase.Text,
		Response:  responseText,
		Model:     unit.Model,
		DomainURL: domain.URL,
		Location:  domain.Location,
	})
	if err == nil {
		return scored.Scores, scored.Competitors
	}

	zap.L().Warn("model scoring unavailable, using heuristic fallback",
		zap.Int64("phrase_id", unit.Phrase.ID),
		zap.String("model", unit.Model),
		zap.Error(err),
	)
	return scorer.Score(unit.Phrase.Text, responseText, domain.URL)
}

// isTimeout reports whether err is the unit-level deadline firing, as
// opposed to the whole run being cancelled or an upstream failure.
func isTimeout(unitCtx, runCtx context.Context, err error) bool {
	if runCtx.Err() != nil {
		return false
	}
	if errors.Is(unitCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
