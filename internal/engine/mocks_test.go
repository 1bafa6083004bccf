package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/provider"
)

// mockStore is a thread-safe in-memory Store for engine tests.
type mockStore struct {
	mu      sync.Mutex
	domain  *model.Domain
	phrases []model.Phrase

	// results keyed by "phraseID/model".
	results   map[string]*model.QueryResult
	snapshots []*model.VisibilitySnapshot

	createErr   error
	snapshotErr error
	prefetchErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		domain: &model.Domain{ID: 1, URL: "https://acme.com", Location: "Austin, TX"},
		phrases: []model.Phrase{
			{ID: 10, KeywordID: 1, DomainID: 1, Keyword: "crm", Text: "best crm software", Selected: true},
			{ID: 11, KeywordID: 1, DomainID: 1, Keyword: "crm", Text: "crm for small business", Selected: true},
		},
		results: make(map[string]*model.QueryResult),
	}
}

func unitKey(phraseID int64, modelName string) string {
	return fmt.Sprintf("%d/%s", phraseID, modelName)
}

func (m *mockStore) seedResult(phraseID int64, modelName string, overall float64) {
	m.results[unitKey(phraseID, modelName)] = &model.QueryResult{
		ID:       unitKey(phraseID, modelName),
		PhraseID: phraseID,
		DomainID: 1,
		Model:    modelName,
		Response: "stored response",
		Scores:   model.ScoreBreakdown{Presence: 1, Relevance: 80, Accuracy: 70, Sentiment: 50, Overall: overall},
	}
}

func (m *mockStore) GetDomain(ctx context.Context, domainID int64) (*model.Domain, error) {
	if m.domain == nil || m.domain.ID != domainID {
		return nil, nil
	}
	return m.domain, nil
}

func (m *mockStore) FindSelectedPhrases(ctx context.Context, domainID int64) ([]model.Phrase, error) {
	return m.phrases, nil
}

func (m *mockStore) FindResult(ctx context.Context, phraseID int64, modelName string) (*model.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[unitKey(phraseID, modelName)], nil
}

func (m *mockStore) FindResultsForPhrases(ctx context.Context, phraseIDs []int64) ([]model.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefetchErr != nil {
		return nil, m.prefetchErr
	}
	var out []model.QueryResult
	for _, id := range phraseIDs {
		for _, r := range m.results {
			if r.PhraseID == id {
				out = append(out, *r)
			}
		}
	}
	return out, nil
}

func (m *mockStore) CreateResult(ctx context.Context, r *model.QueryResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	key := unitKey(r.PhraseID, r.Model)
	if _, exists := m.results[key]; exists {
		return false, nil
	}
	cp := *r
	cp.ID = key
	m.results[key] = &cp
	return true, nil
}

func (m *mockStore) ListResultsForDomain(ctx context.Context, domainID int64) ([]model.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QueryResult
	for _, r := range m.results {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockStore) SaveSnapshot(ctx context.Context, snap *model.VisibilitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *mockStore) LatestSnapshot(ctx context.Context, domainID int64) (*model.VisibilitySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	return m.snapshots[len(m.snapshots)-1], nil
}

func (m *mockStore) Ping(ctx context.Context) error    { return nil }
func (m *mockStore) Migrate(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                      { return nil }

// mockProvider counts calls and delegates to overridable funcs.
type mockProvider struct {
	mu         sync.Mutex
	queryCalls int
	scoreCalls int

	queryFn func(ctx context.Context, req provider.QueryRequest) (*provider.QueryResponse, error)
	scoreFn func(ctx context.Context, req provider.ScoreRequest) (*provider.ScoreResponse, error)
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		queryFn: func(ctx context.Context, req provider.QueryRequest) (*provider.QueryResponse, error) {
			return &provider.QueryResponse{Text: "try acme.com for this", CostUSD: 0.001}, nil
		},
		scoreFn: func(ctx context.Context, req provider.ScoreRequest) (*provider.ScoreResponse, error) {
			return &provider.ScoreResponse{
				Scores: model.ScoreBreakdown{Presence: 1, Relevance: 90, Accuracy: 80, Sentiment: 60, Overall: 75},
			}, nil
		},
	}
}

func (m *mockProvider) Query(ctx context.Context, req provider.QueryRequest) (*provider.QueryResponse, error) {
	m.mu.Lock()
	m.queryCalls++
	fn := m.queryFn
	m.mu.Unlock()
	return fn(ctx, req)
}

func (m *mockProvider) Score(ctx context.Context, req provider.ScoreRequest) (*provider.ScoreResponse, error) {
	m.mu.Lock()
	m.scoreCalls++
	fn := m.scoreFn
	m.mu.Unlock()
	return fn(ctx, req)
}

func (m *mockProvider) queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryCalls
}

// collectSink records emitted events in order.
type collectSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *collectSink) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collectSink) byType(t EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
