package report

import (
	"sort"
	"strings"

	"github.com/hyperjump/taxonomia/internal/models"
)

// Criteria narrows the history. Zero values match everything.
type Criteria struct {
	Subject models.Subject    `json:"subject,omitempty"`
	Grade   models.GradeLevel `json:"grade,omitempty"`
	// Search is matched case-insensitively as a substring of title, subject or grade.
	Search string `json:"search,omitempty"`
}

// Matches reports whether a satisfies every set criterion.
func (c Criteria) Matches(a *models.InstrumentAnalysis) bool {
	if c.Subject != "" && a.Subject != c.Subject {
		return false
	}
	if c.Grade != "" && a.GradeLevel != c.Grade {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(c.Search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.InstrumentTitle), q) ||
		strings.Contains(strings.ToLower(string(a.Subject)), q) ||
		strings.Contains(strings.ToLower(string(a.GradeLevel)), q)
}

// Filter returns the matching analyses, newest first. The input slice is not modified;
// analyses with equal timestamps keep their input order.
func Filter(analyses []*models.InstrumentAnalysis, c Criteria) []*models.InstrumentAnalysis {
	out := make([]*models.InstrumentAnalysis, 0, len(analyses))
	for _, a := range analyses {
		if a != nil && c.Matches(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnalysisDate.After(out[j].AnalysisDate)
	})
	return out
}

// Flatten concatenates the items of analyses in order.
func Flatten(analyses []*models.InstrumentAnalysis) []models.AnalysisItem {
	n := 0
	for _, a := range analyses {
		n += len(a.Items)
	}
	items := make([]models.AnalysisItem, 0, n)
	for _, a := range analyses {
		items = append(items, a.Items...)
	}
	return items
}

// Consolidated is the filtered history with its combined level distribution.
type Consolidated struct {
	Criteria    Criteria                     `json:"criteria"`
	Analyses    []*models.InstrumentAnalysis `json:"-"`
	Instruments int                          `json:"instruments"`
	TotalItems  int                          `json:"total_items"`
	Chart       []models.ChartDataPoint      `json:"chart"`
}

// Consolidate filters analyses and aggregates all their items.
func Consolidate(analyses []*models.InstrumentAnalysis, c Criteria) *Consolidated {
	filtered := Filter(analyses, c)
	items := Flatten(filtered)
	return &Consolidated{
		Criteria:    c,
		Analyses:    filtered,
		Instruments: len(filtered),
		TotalItems:  len(items),
		Chart:       Aggregate(items),
	}
}
