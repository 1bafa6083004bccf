// Package report renders visibility snapshots and raw results into
// XLSX workbooks for offline review.
package report

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/visibility-cli/internal/model"
)

// WriteXLSX writes a workbook with the snapshot rollups and the raw
// per-unit results to path.
func WriteXLSX(path string, snap *model.VisibilitySnapshot, results []model.QueryResult) error {
	f := xlsx.NewFile()

	if err := addOverviewSheet(f, snap); err != nil {
		return err
	}
	if err := addCompetitorSheet(f, snap); err != nil {
		return err
	}
	if err := addResultsSheet(f, results); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addOverviewSheet(f *xlsx.File, snap *model.VisibilitySnapshot) error {
	sheet, err := f.AddSheet("Overview")
	if err != nil {
		return eris.Wrap(err, "report: add overview sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Model", "Queries", "Presence %", "Avg Relevance", "Avg Accuracy", "Avg Sentiment", "Avg Overall"} {
		header.AddCell().SetString(h)
	}

	writeStats := func(s model.ModelStats) {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Model)
		row.AddCell().SetInt(s.TotalQueries)
		row.AddCell().SetFloatWithFormat(s.PresenceRate, "0.0")
		row.AddCell().SetFloatWithFormat(s.AvgRelevance, "0.0")
		row.AddCell().SetFloatWithFormat(s.AvgAccuracy, "0.0")
		row.AddCell().SetFloatWithFormat(s.AvgSentiment, "0.0")
		row.AddCell().SetFloatWithFormat(s.AvgOverall, "0.0")
	}
	writeStats(snap.Overall)
	for _, s := range snap.PerModel {
		writeStats(s)
	}

	if len(snap.Insights) > 0 {
		sheet.AddRow()
		ih := sheet.AddRow()
		ih.AddCell().SetString("Category")
		ih.AddCell().SetString("Insight")
		for _, ins := range snap.Insights {
			row := sheet.AddRow()
			row.AddCell().SetString(string(ins.Category))
			row.AddCell().SetString(ins.Text)
		}
	}
	return nil
}

func addCompetitorSheet(f *xlsx.File, snap *model.VisibilitySnapshot) error {
	sheet, err := f.AddSheet("Competitors")
	if err != nil {
		return eris.Wrap(err, "report: add competitor sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Name", "Domain", "Mentions", "Avg Position", "Threat"} {
		header.AddCell().SetString(h)
	}
	for _, c := range snap.Competitors {
		row := sheet.AddRow()
		row.AddCell().SetString(c.Name)
		row.AddCell().SetString(c.Domain)
		row.AddCell().SetInt(c.Mentions)
		row.AddCell().SetFloatWithFormat(c.AvgPosition, "0.0")
		row.AddCell().SetString(c.ThreatLevel)
	}
	return nil
}

func addResultsSheet(f *xlsx.File, results []model.QueryResult) error {
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "report: add results sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Phrase ID", "Model", "Presence", "Relevance", "Accuracy", "Sentiment", "Overall", "Latency ms", "Cost USD", "Competitors"} {
		header.AddCell().SetString(h)
	}
	for i := range results {
		r := &results[i]
		row := sheet.AddRow()
		row.AddCell().SetInt64(r.PhraseID)
		row.AddCell().SetString(r.Model)
		row.AddCell().SetInt(r.Scores.Presence)
		row.AddCell().SetFloatWithFormat(r.Scores.Relevance, "0.0")
		row.AddCell().SetFloatWithFormat(r.Scores.Accuracy, "0.0")
		row.AddCell().SetFloatWithFormat(r.Scores.Sentiment, "0.0")
		row.AddCell().SetFloatWithFormat(r.Scores.Overall, "0.0")
		row.AddCell().SetInt64(r.LatencyMS)
		row.AddCell().SetFloatWithFormat(r.CostUSD, "0.0000")
		row.AddCell().SetString(competitorSummary(r.Competitors))
	}
	return nil
}

func competitorSummary(mentions []model.CompetitorMention) string {
	out := ""
	for i, m := range mentions {
		if i > 0 {
			out += "; "
		}
		if m.Domain != "" {
			out += fmt.Sprintf("%s (%s)", m.Name, m.Domain)
		} else {
			out += m.Name
		}
	}
	return out
}
