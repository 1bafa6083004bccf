// Package provider routes engine queries to the AI model backing each
// display name and paces outbound calls per provider.
package provider

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/visibility-cli/internal/model"
)

// QueryRequest asks one model about one phrase.
type QueryRequest struct {
	Phrase    string
	Model     string
	DomainURL string
	Location  string
	Context   string
}

// QueryResponse is the raw outcome of a model query.
type QueryResponse struct {
	Text    string
	CostUSD float64
}

// ScoreRequest asks the scorer to evaluate one model response against
// the target domain.
type ScoreRequest struct {
	Phrase    string
	Response  string
	Model     string
	DomainURL string
	Location  string
}

// ScoreResponse is the scored outcome.
type ScoreResponse struct {
	Scores      model.ScoreBreakdown
	Competitors []model.CompetitorMention
}

// Querier performs the opaque "query a model" call.
type Querier interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

// Scorer performs the opaque "score a response" call.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)
}

// Registry maps model display names to their backing Querier and holds
// the shared Scorer. Each model gets a rate limiter so batch fan-out
// cannot burst a single upstream.
type Registry struct {
	mu       sync.RWMutex
	queriers map[string]Querier
	limiters map[string]*rate.Limiter
	scorer   Scorer

	limit rate.Limit
	burst int
}

// NewRegistry creates an empty registry. Each registered model is paced
// at the given sustained rate and burst.
func NewRegistry(scorer Scorer, limit rate.Limit, burst int) *Registry {
	if limit <= 0 {
		limit = 2
	}
	if burst <= 0 {
		burst = 4
	}
	return &Registry{
		queriers: make(map[string]Querier),
		limiters: make(map[string]*rate.Limiter),
		scorer:   scorer,
		limit:    limit,
		burst:    burst,
	}
}

// Register binds a model display name to a querier.
func (r *Registry) Register(modelName string, q Querier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queriers[modelName] = q
	r.limiters[modelName] = rate.NewLimiter(r.limit, r.burst)
}

// Models returns the registered model names.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queriers))
	for name := range r.queriers {
		names = append(names, name)
	}
	return names
}

// Query paces and dispatches a query to the model's backing provider.
func (r *Registry) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	r.mu.RLock()
	q, ok := r.queriers[req.Model]
	lim := r.limiters[req.Model]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Errorf("provider: no querier registered for model %q", req.Model)
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "provider: rate wait for %s", req.Model)
	}
	return q.Query(ctx, req)
}

// Score dispatches to the shared scorer.
func (r *Registry) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	if r.scorer == nil {
		return nil, eris.New("provider: no scorer configured")
	}
	return r.scorer.Score(ctx, req)
}
