// Package cli renders analyses, history and statistics for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/internal/report"
	"github.com/hyperjump/taxonomia/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	dateLayout = "2006-01-02 15:04"
	barWidth   = 30
)

// ParseFormat validates a --format value. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (use text or json)", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteHistory writes one line per analysis, in the given order.
func WriteHistory(w io.Writer, analyses []*models.InstrumentAnalysis, format OutputFormat) error {
	if format == OutputJSON {
		if analyses == nil {
			analyses = []*models.InstrumentAnalysis{}
		}
		return writeJSON(w, analyses)
	}
	if len(analyses) == 0 {
		fmt.Fprintln(w, "No analyses found.")
		return nil
	}
	fmt.Fprintf(w, "%d analyses\n\n", len(analyses))
	for _, a := range analyses {
		fmt.Fprintf(w, "%s  %-36s  %s | %s | %d items\n",
			a.AnalysisDate.Local().Format(dateLayout), a.ID,
			utils.Truncate(a.InstrumentTitle, 40), a.Subject, len(a.Items))
		fmt.Fprintf(w, "%s  %s\n", strings.Repeat(" ", len(dateLayout)), a.GradeLevel)
	}
	return nil
}

// WriteAnalysis writes a single analysis with its items and level distribution.
func WriteAnalysis(w io.Writer, a *models.InstrumentAnalysis, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, a)
	}
	fmt.Fprintf(w, "%s\n", a.InstrumentTitle)
	fmt.Fprintf(w, "ID:      %s\n", a.ID)
	fmt.Fprintf(w, "Subject: %s\n", a.Subject)
	fmt.Fprintf(w, "Grade:   %s\n", a.GradeLevel)
	fmt.Fprintf(w, "Date:    %s\n", a.AnalysisDate.Local().Format(dateLayout))
	fmt.Fprintf(w, "\nSummary\n%s\n", a.TextualSummary)
	if len(a.Items) > 0 {
		fmt.Fprintf(w, "\nItems (%d)\n", len(a.Items))
		for i, it := range a.Items {
			fmt.Fprintf(w, "%3d. [%-10s] %s\n", i+1, it.BloomLevel, utils.Truncate(it.ItemText, 100))
		}
	}
	fmt.Fprintln(w)
	writeChartText(w, report.Aggregate(a.Items))
	return nil
}

// WriteChart writes a level distribution.
func WriteChart(w io.Writer, points []models.ChartDataPoint, format OutputFormat) error {
	if format == OutputJSON {
		if points == nil {
			points = []models.ChartDataPoint{}
		}
		return writeJSON(w, points)
	}
	writeChartText(w, points)
	return nil
}

func writeChartText(w io.Writer, points []models.ChartDataPoint) {
	if len(points) == 0 {
		fmt.Fprintln(w, "No items to chart.")
		return
	}
	fmt.Fprintln(w, "Distribution")
	for _, p := range points {
		n := int(p.Percentage / 100 * barWidth)
		fmt.Fprintf(w, "  %-10s %-*s %3d (%5.1f%%)\n", p.Name, barWidth, strings.Repeat("#", n), p.Value, p.Percentage)
	}
}

// WriteStats writes the consolidated distribution of a filtered history.
func WriteStats(w io.Writer, c *report.Consolidated, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, c)
	}
	fmt.Fprintf(w, "Instruments: %d\n", c.Instruments)
	fmt.Fprintf(w, "Items:       %d\n", c.TotalItems)
	if filter := describeCriteria(c.Criteria); filter != "" {
		fmt.Fprintf(w, "Filter:      %s\n", filter)
	}
	fmt.Fprintln(w)
	writeChartText(w, c.Chart)
	return nil
}

func describeCriteria(c report.Criteria) string {
	var parts []string
	if c.Subject != "" {
		parts = append(parts, "subject="+string(c.Subject))
	}
	if c.Grade != "" {
		parts = append(parts, "grade="+string(c.Grade))
	}
	if c.Search != "" {
		parts = append(parts, fmt.Sprintf("search=%q", c.Search))
	}
	return strings.Join(parts, " ")
}

// WriteTaxonomy lists the levels in order, then the subjects and grades accepted as input.
func WriteTaxonomy(w io.Writer, format OutputFormat) error {
	if format == OutputJSON {
		type level struct {
			Name  models.BloomLevel `json:"name"`
			Color string            `json:"color"`
		}
		levels := make([]level, 0, 6)
		for _, l := range models.BloomLevels() {
			levels = append(levels, level{Name: l, Color: l.Color()})
		}
		return writeJSON(w, map[string]interface{}{
			"levels":   levels,
			"subjects": models.Subjects(),
			"grades":   models.GradeLevels(),
		})
	}
	fmt.Fprintln(w, "Bloom levels (lowest to highest)")
	for _, l := range models.BloomLevels() {
		fmt.Fprintf(w, "  %d. %-10s %s\n", l.Rank()+1, l, l.Color())
	}
	fmt.Fprintln(w, "\nSubjects")
	for _, s := range models.Subjects() {
		fmt.Fprintf(w, "  %s\n", s)
	}
	fmt.Fprintln(w, "\nGrades")
	for _, g := range models.GradeLevels() {
		fmt.Fprintf(w, "  %s\n", g)
	}
	return nil
}
