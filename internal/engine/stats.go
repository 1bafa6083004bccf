package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Aggregator computes visibility snapshots from result sets. Every
// snapshot is recomputed from scratch; nothing is merged incrementally.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates an aggregator using the wall clock.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// TotalsOnly computes per-model totals and averages. Used for the
// mid-run stats emitted after each batch.
func (a *Aggregator) TotalsOnly(results []model.QueryResult) *model.VisibilitySnapshot {
	snap := &model.VisibilitySnapshot{GeneratedAt: a.now()}
	a.fillTotals(snap, results)
	return snap
}

// Comprehensive computes totals plus the competitor table and
// rule-based insights. Used for the final snapshot of a run.
func (a *Aggregator) Comprehensive(domainID int64, results []model.QueryResult) *model.VisibilitySnapshot {
	snap := &model.VisibilitySnapshot{DomainID: domainID, GeneratedAt: a.now()}
	a.fillTotals(snap, results)
	snap.Competitors = competitorTable(results)
	snap.Insights = deriveInsights(snap)
	return snap
}

// fillTotals folds results into overall and per-model stats. Entries
// with no model name are malformed and skipped rather than failing the
// whole aggregation.
func (a *Aggregator) fillTotals(snap *model.VisibilitySnapshot, results []model.QueryResult) {
	type acc struct {
		n         int
		present   int
		relevance float64
		accuracy  float64
		sentiment float64
		overall   float64
	}

	var total acc
	perModel := make(map[string]*acc)
	for i := range results {
		r := &results[i]
		if r.Model == "" {
			continue
		}
		m := perModel[r.Model]
		if m == nil {
			m = &acc{}
			perModel[r.Model] = m
		}
		for _, c := range []*acc{&total, m} {
			c.n++
			if r.Scores.Presence > 0 {
				c.present++
			}
			c.relevance += r.Scores.Relevance
			c.accuracy += r.Scores.Accuracy
			c.sentiment += r.Scores.Sentiment
			c.overall += r.Scores.Overall
		}
	}

	rollup := func(name string, c *acc) model.ModelStats {
		s := model.ModelStats{Model: name, TotalQueries: c.n}
		if c.n == 0 {
			// Zero results must yield zeros, never NaN.
			return s
		}
		n := float64(c.n)
		s.PresenceRate = float64(c.present) / n * 100
		s.AvgRelevance = c.relevance / n
		s.AvgAccuracy = c.accuracy / n
		s.AvgSentiment = c.sentiment / n
		s.AvgOverall = c.overall / n
		return s
	}

	snap.TotalResults = total.n
	snap.Overall = rollup("all", &total)
	names := make([]string, 0, len(perModel))
	for name := range perModel {
		names = append(names, name)
	}
	sort.Strings(names)
	snap.PerModel = make([]model.ModelStats, 0, len(names))
	for _, name := range names {
		snap.PerModel = append(snap.PerModel, rollup(name, perModel[name]))
	}
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// competitorTable folds mentions across results into per-competitor
// stats, keyed by domain when present and by normalized name otherwise.
func competitorTable(results []model.QueryResult) []model.CompetitorStats {
	type acc struct {
		stats     model.CompetitorStats
		positions int
	}

	byKey := make(map[string]*acc)
	totalResults := 0
	for i := range results {
		r := &results[i]
		if r.Model == "" {
			continue
		}
		totalResults++
		for _, m := range r.Competitors {
			key := strings.ToLower(m.Domain)
			if key == "" {
				key = strings.ToLower(m.Name)
			}
			if key == "" {
				continue
			}
			c := byKey[key]
			if c == nil {
				c = &acc{stats: model.CompetitorStats{
					Name:   titleCaser.String(m.Name),
					Domain: strings.ToLower(m.Domain),
				}}
				byKey[key] = c
			}
			c.stats.Mentions++
			if m.Position > 0 {
				c.stats.AvgPosition += float64(m.Position)
				c.positions++
			}
		}
	}

	out := make([]model.CompetitorStats, 0, len(byKey))
	for _, c := range byKey {
		if c.positions > 0 {
			c.stats.AvgPosition /= float64(c.positions)
		}
		c.stats.ThreatLevel = threatLevel(c.stats.Mentions, totalResults)
		out = append(out, c.stats)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mentions != out[j].Mentions {
			return out[i].Mentions > out[j].Mentions
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func threatLevel(mentions, totalResults int) string {
	if totalResults == 0 {
		return "low"
	}
	share := float64(mentions) / float64(totalResults)
	switch {
	case share >= 0.5:
		return "high"
	case share >= 0.25:
		return "medium"
	default:
		return "low"
	}
}

// deriveInsights produces rule-based findings from a filled snapshot.
func deriveInsights(snap *model.VisibilitySnapshot) []model.Insight {
	if snap.TotalResults == 0 {
		return nil
	}

	var insights []model.Insight
	add := func(cat model.InsightCategory, format string, args ...any) {
		insights = append(insights, model.Insight{Category: cat, Text: fmt.Sprintf(format, args...)})
	}

	overall := snap.Overall
	switch {
	case overall.PresenceRate >= 70:
		add(model.InsightStrength, "strong AI visibility: the domain appears in %.0f%% of model responses", overall.PresenceRate)
	case overall.PresenceRate < 30:
		add(model.InsightWeakness, "weak AI visibility: the domain appears in only %.0f%% of model responses", overall.PresenceRate)
	}
	if overall.AvgRelevance >= 75 {
		add(model.InsightStrength, "responses that mention the domain are highly relevant (avg %.0f)", overall.AvgRelevance)
	} else if overall.AvgRelevance < 40 {
		add(model.InsightWeakness, "responses rarely match the search intent (avg relevance %.0f)", overall.AvgRelevance)
	}
	if overall.AvgAccuracy < 50 {
		add(model.InsightWeakness, "models describe the domain inaccurately (avg accuracy %.0f)", overall.AvgAccuracy)
	}

	for _, m := range snap.PerModel {
		if m.TotalQueries > 0 && m.PresenceRate == 0 {
			add(model.InsightOpportunity, "the domain never appears in %s responses across %d queries", m.Model, m.TotalQueries)
		}
	}

	for _, c := range snap.Competitors {
		if c.ThreatLevel == "high" {
			add(model.InsightThreat, "%s is mentioned in %d responses and dominates this space", c.Name, c.Mentions)
			break
		}
	}
	return insights
}
