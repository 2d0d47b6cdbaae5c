package common

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/north-cloud/so-ingestor/internal/analysis"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/execution"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/refresh"
	"github.com/jonesrussell/north-cloud/so-ingestor/internal/store"
)

const summaryAnalyzer = "summary"

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

// RenderSummary prints the run summary, the phase timings and, when the
// summary analyzer ran, its tag and author tables.
func RenderSummary(w io.Writer, s execution.Summary) {
	t := newTable(w, "Run "+s.RunID)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"State", s.State},
		{"Source", s.Source},
		{"Mode", s.Mode},
		{"Analysis scope", s.AnalysisScope},
		{"Requested", s.Requested},
		{"Fetched", s.Counts.Fetched},
		{"Pages", s.Fetch.Pages},
		{"Stop reason", s.Fetch.StopReason},
		{"Partial", s.Fetch.Partial},
		{"Skipped records", s.Fetch.Skipped},
		{"Duplicates", s.Fetch.Duplicates},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Stored", s.Counts.Stored},
		{"Inserted", s.Counts.Inserted},
		{"Replaced", s.Counts.Replaced},
		{"Filtered", s.Counts.Filtered},
		{"Write errors", s.Counts.WriteErrors},
		{"Drift", s.Counts.Drift},
		{"New authors", s.Counts.NewAuthors},
		{"Updated authors", s.Counts.UpdatedAuthors},
		{"Author errors", s.Counts.AuthorErrors},
	})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Scope size", s.ScopeIDs.Len()})
	if s.AnalysisDispatched {
		t.AppendRow(table.Row{"Analysis", "dispatched"})
	} else if s.AnalysisSkipReason != "" {
		t.AppendRow(table.Row{"Analysis", "skipped: " + s.AnalysisSkipReason})
	}
	if s.AnalysisError != "" {
		t.AppendRow(table.Row{"Analysis error", s.AnalysisError})
	}
	if s.Error != "" {
		t.AppendRow(table.Row{"Error", s.Error})
	}
	if len(s.States) > 0 {
		t.AppendRow(table.Row{"States", strings.Join(s.States, " > ")})
	}
	t.AppendFooter(table.Row{"Duration", orMillis(s.Duration, s.DurationMillis)})
	t.Render()

	if len(s.Phases) > 0 {
		pt := newTable(w, "Phases")
		pt.AppendHeader(table.Row{"Phase", "Duration"})
		for _, p := range s.Phases {
			pt.AppendRow(table.Row{p.Phase, orMillis(p.Duration, p.Millis)})
		}
		pt.Render()
	}

	if stats, ok := summaryStats(s); ok {
		renderStats(w, stats)
	}
}

// orMillis falls back to the millisecond field, which is all a summary read
// back from an audit artifact carries.
func orMillis(d time.Duration, millis int64) time.Duration {
	if d == 0 {
		d = time.Duration(millis) * time.Millisecond
	}
	return d.Round(time.Millisecond)
}

func summaryStats(s execution.Summary) (analysis.Stats, bool) {
	res, ok := s.AnalysisResults[summaryAnalyzer].(analysis.Result)
	if !ok {
		return analysis.Stats{}, false
	}
	stats, ok := res["stats"].(analysis.Stats)
	return stats, ok
}

func renderStats(w io.Writer, stats analysis.Stats) {
	t := newTable(w, fmt.Sprintf("Analysis (%d questions)", stats.Questions))
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Mean views", fmt.Sprintf("%.1f", stats.MeanViews)},
		{"Mean votes", fmt.Sprintf("%.2f", stats.MeanVotes)},
		{"Mean answers", fmt.Sprintf("%.2f", stats.MeanAnswers)},
		{"Unanswered", fmt.Sprintf("%.1f%%", stats.UnansweredRate*100)},
		{"Unique tags", stats.UniqueTags},
	})
	if stats.Earliest != nil && stats.Latest != nil {
		t.AppendRow(table.Row{"Date range", stats.Earliest.Format(time.DateOnly) + " .. " + stats.Latest.Format(time.DateOnly)})
	}
	t.Render()

	if len(stats.TopTags) > 0 {
		tt := newTable(w, "Top tags")
		tt.AppendHeader(table.Row{"Tag", "Questions"})
		for _, tc := range stats.TopTags {
			tt.AppendRow(table.Row{tc.Tag, tc.Count})
		}
		tt.Render()
	}

	if len(stats.TopAuthors) > 0 {
		at := newTable(w, "Top authors")
		at.AppendHeader(table.Row{"Author", "Questions", "Reputation"})
		for _, ac := range stats.TopAuthors {
			at.AppendRow(table.Row{ac.Name, ac.QuestionCount, ac.Reputation})
		}
		at.Render()
	}
}

// RenderRefreshStats prints the outcome of a refresh.
func RenderRefreshStats(w io.Writer, stats refresh.Stats, dryRun bool) {
	title := "Refresh"
	if dryRun {
		title += " (dry run)"
	}
	t := newTable(w, title)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Processed", stats.Processed},
		{"Fetched", stats.Fetched},
		{"Updated", stats.Updated},
		{"Skipped", stats.Skipped},
		{"Errors", stats.Errors},
		{"Batches", stats.Batches},
		{"New authors", stats.Authors.New},
		{"Updated authors", stats.Authors.Updated},
	})
	t.Render()
}

// RenderStoreStats prints the store counts, the publication range and the
// top authors.
func RenderStoreStats(w io.Writer, stats store.Stats, top []domain.Author) {
	t := newTable(w, "Store")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Questions", stats.Questions},
		{"Authors", stats.Authors},
	})
	if stats.EarliestPublication != nil && stats.LatestPublication != nil {
		t.AppendRows([]table.Row{
			{"First published", stats.EarliestPublication.Format(time.DateTime)},
			{"Last published", stats.LatestPublication.Format(time.DateTime)},
		})
	}
	t.Render()

	if len(top) == 0 {
		return
	}
	at := newTable(w, "Top authors")
	at.AppendHeader(table.Row{"Author", "Questions", "Reputation", "Last seen"})
	for _, a := range top {
		at.AppendRow(table.Row{a.Name, a.QuestionCount, a.Reputation, a.LastSeen.Format(time.DateOnly)})
	}
	at.Render()
}

// PrintStatus prints a one-line colored verdict for a run.
func PrintStatus(w io.Writer, s execution.Summary, auditPath string) {
	switch {
	case s.Failed():
		color.New(color.FgRed, color.Bold).Fprintf(w, "✗ run %s failed: %s\n", s.RunID, s.Error)
	case s.Fetch.Partial || s.Counts.WriteErrors > 0:
		color.New(color.FgYellow).Fprintf(w, "! run %s finished with gaps: stored %d of %d (%s)\n",
			s.RunID, s.Counts.Stored, s.Counts.Fetched, s.Fetch.StopReason)
	default:
		color.New(color.FgGreen).Fprintf(w, "✓ run %s stored %d questions\n", s.RunID, s.Counts.Stored)
	}
	if auditPath != "" {
		color.New(color.FgHiBlack).Fprintf(w, "  audit: %s\n", auditPath)
	}
}
