// Package model defines the core domain types shared across the engine,
// store, and HTTP surface.
package model

import "time"

// Domain is a tracked brand domain. Read-only to the engine except for
// derived snapshots.
type Domain struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Location string `json:"location,omitempty"`
	Context  string `json:"context,omitempty"`
}

// Keyword is a seed term owned by a domain.
type Keyword struct {
	ID       int64  `json:"id"`
	DomainID int64  `json:"domain_id"`
	Text     string `json:"text"`
}

// Phrase is a generated search query associated with a keyword. Only
// phrases marked selected are eligible for analysis.
type Phrase struct {
	ID        int64  `json:"id"`
	KeywordID int64  `json:"keyword_id"`
	DomainID  int64  `json:"domain_id"`
	Keyword   string `json:"keyword"`
	Text      string `json:"text"`
	Selected  bool   `json:"selected"`
}

// ScoreBreakdown is the five-axis score assigned to one model response.
// Presence is binary (0 or 1); the remaining axes are 0 to 100.
type ScoreBreakdown struct {
	Presence  int     `json:"presence"`
	Relevance float64 `json:"relevance"`
	Accuracy  float64 `json:"accuracy"`
	Sentiment float64 `json:"sentiment"`
	Overall   float64 `json:"overall"`
}

// CompetitorMention records one competitor found in a model response.
type CompetitorMention struct {
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
	Position    int    `json:"position"`
	Context     string `json:"context,omitempty"`
	Sentiment   string `json:"sentiment,omitempty"`
	MentionType string `json:"mention_type,omitempty"`
}

// QueryResult is one persisted (phrase, model) outcome. At most one row
// exists per (PhraseID, Model), enforced by a unique index.
type QueryResult struct {
	ID          string              `json:"id"`
	PhraseID    int64               `json:"phrase_id"`
	DomainID    int64               `json:"domain_id"`
	Model       string              `json:"model"`
	Response    string              `json:"response"`
	LatencyMS   int64               `json:"latency_ms"`
	CostUSD     float64             `json:"cost_usd"`
	Scores      ScoreBreakdown      `json:"scores"`
	Competitors []CompetitorMention `json:"competitors,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// ModelStats is a per-model rollup of query results.
type ModelStats struct {
	Model        string  `json:"model"`
	TotalQueries int     `json:"total_queries"`
	PresenceRate float64 `json:"presence_rate"`
	AvgRelevance float64 `json:"avg_relevance"`
	AvgAccuracy  float64 `json:"avg_accuracy"`
	AvgSentiment float64 `json:"avg_sentiment"`
	AvgOverall   float64 `json:"avg_overall"`
}

// CompetitorStats summarizes how often a competitor appears across
// results and how threatening it is to the tracked domain.
type CompetitorStats struct {
	Name        string  `json:"name"`
	Domain      string  `json:"domain,omitempty"`
	Mentions    int     `json:"mentions"`
	AvgPosition float64 `json:"avg_position"`
	ThreatLevel string  `json:"threat_level"` // "low", "medium", "high"
}

// InsightCategory classifies a qualitative insight.
type InsightCategory string

const (
	InsightStrength    InsightCategory = "strength"
	InsightWeakness    InsightCategory = "weakness"
	InsightOpportunity InsightCategory = "opportunity"
	InsightThreat      InsightCategory = "threat"
)

// Insight is a rule-derived qualitative finding.
type Insight struct {
	Category InsightCategory `json:"category"`
	Text     string          `json:"text"`
}

// VisibilitySnapshot is a point-in-time aggregate over a result set.
// Recomputed fully each run, never merged incrementally.
type VisibilitySnapshot struct {
	DomainID     int64             `json:"domain_id,omitempty"`
	TotalResults int               `json:"total_results"`
	Overall      ModelStats        `json:"overall"`
	PerModel     []ModelStats      `json:"per_model"`
	Competitors  []CompetitorStats `json:"competitors,omitempty"`
	Insights     []Insight         `json:"insights,omitempty"`
	GeneratedAt  time.Time         `json:"generated_at"`
}
