package engine

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

// CompletionCache answers "does this unit already have a stored result"
// for one run. It prefetches every existing result for the run's phrases
// in a single store round-trip; the store remains the system of record
// and the index is discarded with the run.
type CompletionCache struct {
	byUnit map[int64]map[string]*model.QueryResult
}

// NewCompletionCache loads existing results for all phrases in the run.
func NewCompletionCache(ctx context.Context, st store.Store, phrases []model.Phrase) (*CompletionCache, error) {
	ids := make([]int64, 0, len(phrases))
	for _, p := range phrases {
		ids = append(ids, p.ID)
	}

	existing, err := st.FindResultsForPhrases(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "engine: prefetch existing results")
	}

	byUnit := make(map[int64]map[string]*model.QueryResult)
	for i := range existing {
		r := &existing[i]
		if byUnit[r.PhraseID] == nil {
			byUnit[r.PhraseID] = make(map[string]*model.QueryResult)
		}
		byUnit[r.PhraseID][r.Model] = r
	}
	return &CompletionCache{byUnit: byUnit}, nil
}

// IsComplete reports whether the phrase has a stored result for every
// model in the active set, returning the stored results when so.
func (c *CompletionCache) IsComplete(phraseID int64, models []string) (bool, []*model.QueryResult) {
	stored := c.byUnit[phraseID]
	if len(stored) < len(models) {
		return false, nil
	}
	results := make([]*model.QueryResult, 0, len(models))
	for _, m := range models {
		r, ok := stored[m]
		if !ok {
			return false, nil
		}
		results = append(results, r)
	}
	return true, results
}

// Result returns the stored result for one (phrase, model) unit, or nil.
func (c *CompletionCache) Result(phraseID int64, modelName string) *model.QueryResult {
	return c.byUnit[phraseID][modelName]
}

// Add records a freshly persisted result so later phrase-level checks in
// the same run see it.
func (c *CompletionCache) Add(r *model.QueryResult) {
	if c.byUnit[r.PhraseID] == nil {
		c.byUnit[r.PhraseID] = make(map[string]*model.QueryResult)
	}
	c.byUnit[r.PhraseID][r.Model] = r
}
