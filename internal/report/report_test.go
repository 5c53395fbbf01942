package report

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/taxonomia/internal/models"
)

func items(levels ...models.BloomLevel) []models.AnalysisItem {
	out := make([]models.AnalysisItem, len(levels))
	for i, l := range levels {
		out[i] = models.AnalysisItem{ID: string(rune('a' + i)), ItemText: "q", BloomLevel: l}
	}
	return out
}

func TestAggregate_empty(t *testing.T) {
	if got := Aggregate(nil); len(got) != 0 {
		t.Errorf("Aggregate(nil) = %v, want empty", got)
	}
}

func TestAggregate(t *testing.T) {
	got := Aggregate(items(models.Remember, models.Remember, models.Analyze))
	want := []models.ChartDataPoint{
		{Name: models.Remember, Value: 2, Percentage: 66.7},
		{Name: models.Understand, Value: 0, Percentage: 0},
		{Name: models.Apply, Value: 0, Percentage: 0},
		{Name: models.Analyze, Value: 1, Percentage: 33.3},
		{Name: models.Evaluate, Value: 0, Percentage: 0},
		{Name: models.Create, Value: 0, Percentage: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_countsSumToTotal(t *testing.T) {
	in := items(models.Remember, models.Understand, models.Apply, models.Apply, models.Evaluate, models.Create, models.Create)
	sum := 0
	for _, p := range Aggregate(in) {
		sum += p.Value
	}
	if sum != len(in) {
		t.Errorf("sum of counts = %d, want %d", sum, len(in))
	}
}

func TestAggregate_tenItems(t *testing.T) {
	in := items(
		models.Remember, models.Remember, models.Remember,
		models.Understand, models.Understand,
		models.Apply, models.Apply,
		models.Analyze, models.Evaluate, models.Create,
	)
	wantCounts := map[models.BloomLevel]int{
		models.Remember: 3, models.Understand: 2, models.Apply: 2,
		models.Analyze: 1, models.Evaluate: 1, models.Create: 1,
	}
	got := Aggregate(in)
	sum := 0
	for _, p := range got {
		sum += p.Value
		if p.Value != wantCounts[p.Name] {
			t.Errorf("%s: count %d, want %d", p.Name, p.Value, wantCounts[p.Name])
		}
		exact := float64(p.Value) / 10 * 100
		if math.Abs(p.Percentage-exact) > 0.1 {
			t.Errorf("%s: percentage %v, want within 0.1 of %v", p.Name, p.Percentage, exact)
		}
	}
	if sum != 10 {
		t.Errorf("sum of counts = %d, want 10", sum)
	}
}

func analysis(id, title string, subject models.Subject, grade models.GradeLevel, at time.Time, its []models.AnalysisItem) *models.InstrumentAnalysis {
	return &models.InstrumentAnalysis{
		ID: id, InstrumentTitle: title, Subject: subject, GradeLevel: grade,
		AnalysisDate: at, Items: its,
	}
}

func ids(as []*models.InstrumentAnalysis) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestFilter(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	history := []*models.InstrumentAnalysis{
		analysis("old-math", "Algebra quiz", models.SubjectMathematics, models.Grade1, base, nil),
		analysis("new-hist", "Revolution essay", models.SubjectHistory, models.Grade2, base.Add(2*time.Hour), nil),
		analysis("mid-math", "Geometry test", models.SubjectMathematics, models.Grade2, base.Add(time.Hour), nil),
	}
	snapshot := ids(history)

	tests := []struct {
		name string
		c    Criteria
		want []string
	}{
		{"no criteria sorts newest first", Criteria{}, []string{"new-hist", "mid-math", "old-math"}},
		{"subject", Criteria{Subject: models.SubjectMathematics}, []string{"mid-math", "old-math"}},
		{"grade", Criteria{Grade: models.Grade2}, []string{"new-hist", "mid-math"}},
		{"subject and grade", Criteria{Subject: models.SubjectMathematics, Grade: models.Grade1}, []string{"old-math"}},
		{"search title case-insensitive", Criteria{Search: "QUIZ"}, []string{"old-math"}},
		{"search subject", Criteria{Search: "histo"}, []string{"new-hist"}},
		{"search grade", Criteria{Search: "2º"}, []string{"new-hist", "mid-math"}},
		{"search combined with subject", Criteria{Subject: models.SubjectHistory, Search: "geometry"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(history, tt.c))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if diff := cmp.Diff(snapshot, ids(history)); diff != "" {
		t.Errorf("input was modified:\n%s", diff)
	}
}

func TestFilter_stableForEqualTimestamps(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []*models.InstrumentAnalysis{
		analysis("first", "A", models.SubjectArts, models.Grade1, at, nil),
		analysis("second", "B", models.SubjectArts, models.Grade1, at, nil),
	}
	if diff := cmp.Diff([]string{"first", "second"}, ids(Filter(history, Criteria{}))); diff != "" {
		t.Errorf("order mismatch:\n%s", diff)
	}
}

func TestConsolidate(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []*models.InstrumentAnalysis{
		analysis("a", "A", models.SubjectArts, models.Grade1, at, items(models.Remember, models.Apply)),
		analysis("b", "B", models.SubjectMusic, models.Grade1, at.Add(time.Minute), items(models.Apply)),
		analysis("c", "C", models.SubjectArts, models.Grade1, at.Add(2*time.Minute), nil),
	}
	got := Consolidate(history, Criteria{Subject: models.SubjectArts})
	if got.Instruments != 2 || got.TotalItems != 2 {
		t.Errorf("instruments=%d items=%d", got.Instruments, got.TotalItems)
	}
	if got.Chart[0].Value != 1 || got.Chart[2].Value != 1 || got.Chart[2].Percentage != 50 {
		t.Errorf("chart = %+v", got.Chart)
	}

	empty := Consolidate(history, Criteria{Subject: models.SubjectPhilosophy})
	if len(empty.Chart) != 0 || empty.TotalItems != 0 {
		t.Errorf("expected empty consolidation, got %+v", empty)
	}
}

func TestExportFilename(t *testing.T) {
	tests := []struct{ title, want string }{
		{"Unit 3  final exam", "Unit_3_final_exam_analysis.json"},
		{"a/b", "a_b_analysis.json"},
		{"   ", "instrument_analysis.json"},
	}
	for _, tt := range tests {
		if got := ExportFilename(tt.title, ".json"); got != tt.want {
			t.Errorf("ExportFilename(%q) = %s, want %s", tt.title, got, tt.want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	a := analysis("x", "T", models.SubjectArts, models.Grade1, time.Now().UTC(), items(models.Create))
	var buf bytes.Buffer
	if err := WriteJSON(&buf, a); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["instrumentTitle"] != "T" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteWorkbook(t *testing.T) {
	at := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	history := []*models.InstrumentAnalysis{
		analysis("a", "Quiz", models.SubjectArts, models.Grade1, at, items(models.Remember, models.Create)),
	}
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, history); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(itemsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("items sheet rows = %d, want 3", len(rows))
	}
	if rows[2][5] != "Create" || rows[1][3] != "2025-01-01 09:30" {
		t.Errorf("rows = %v", rows)
	}
	dist, err := f.GetRows(distributionSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(dist) != 7 || dist[1][0] != "Remember" || dist[1][1] != "1" {
		t.Errorf("distribution = %v", dist)
	}
}
