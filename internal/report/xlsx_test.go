package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/visibility-cli/internal/model"
)

func testSnapshot() *model.VisibilitySnapshot {
	return &model.VisibilitySnapshot{
		DomainID:     1,
		TotalResults: 4,
		Overall:      model.ModelStats{Model: "all", TotalQueries: 4, PresenceRate: 75, AvgOverall: 62.5},
		PerModel: []model.ModelStats{
			{Model: "ChatGPT", TotalQueries: 2, PresenceRate: 100, AvgOverall: 70},
			{Model: "Claude", TotalQueries: 2, PresenceRate: 50, AvgOverall: 55},
		},
		Competitors: []model.CompetitorStats{
			{Name: "Rival", Domain: "rival.com", Mentions: 3, AvgPosition: 1.5, ThreatLevel: "high"},
		},
		Insights: []model.Insight{
			{Category: model.InsightStrength, Text: "strong overall presence"},
		},
		GeneratedAt: time.Now().UTC(),
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")

	results := []model.QueryResult{
		{
			PhraseID: 10, Model: "ChatGPT", Response: "try acme.com",
			LatencyMS: 900, CostUSD: 0.0012,
			Scores: model.ScoreBreakdown{Presence: 1, Relevance: 80, Accuracy: 70, Sentiment: 50, Overall: 68},
			Competitors: []model.CompetitorMention{
				{Name: "Rival", Domain: "rival.com", Position: 2},
			},
		},
		{
			PhraseID: 10, Model: "Claude", Response: "no mention",
			Scores: model.ScoreBreakdown{Presence: 0},
		},
	}

	require.NoError(t, WriteXLSX(path, testSnapshot(), results))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Equal(t, "Overview", f.Sheets[0].Name)
	assert.Equal(t, "Competitors", f.Sheets[1].Name)
	assert.Equal(t, "Results", f.Sheets[2].Name)

	overview := f.Sheets[0]
	assert.Equal(t, "Model", overview.Rows[0].Cells[0].String())
	assert.Equal(t, "all", overview.Rows[1].Cells[0].String())
	assert.Equal(t, "ChatGPT", overview.Rows[2].Cells[0].String())
	assert.Equal(t, "Claude", overview.Rows[3].Cells[0].String())

	competitors := f.Sheets[1]
	require.Len(t, competitors.Rows, 2)
	assert.Equal(t, "Rival", competitors.Rows[1].Cells[0].String())
	assert.Equal(t, "rival.com", competitors.Rows[1].Cells[1].String())
	assert.Equal(t, "high", competitors.Rows[1].Cells[4].String())

	resultRows := f.Sheets[2].Rows
	require.Len(t, resultRows, 3)
	assert.Equal(t, "ChatGPT", resultRows[1].Cells[1].String())
	assert.Equal(t, "Rival (rival.com)", resultRows[1].Cells[9].String())
	assert.Equal(t, "Claude", resultRows[2].Cells[1].String())
}

func TestWriteXLSX_IncludesInsights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, testSnapshot(), nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	overview := f.Sheets[0]
	last := overview.Rows[len(overview.Rows)-1]
	assert.Equal(t, "strength", last.Cells[0].String())
	assert.Equal(t, "strong overall presence", last.Cells[1].String())
}

func TestCompetitorSummary(t *testing.T) {
	assert.Equal(t, "", competitorSummary(nil))
	assert.Equal(t, "Rival (rival.com); Other",
		competitorSummary([]model.CompetitorMention{
			{Name: "Rival", Domain: "rival.com"},
			{Name: "Other"},
		}))
}
