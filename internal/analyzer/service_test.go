package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/taxonomia/internal/classify"
	"github.com/hyperjump/taxonomia/internal/keyword"
	"github.com/hyperjump/taxonomia/internal/llm"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/internal/report"
	"github.com/hyperjump/taxonomia/internal/storage"
)

type stubClassifier struct {
	mu    sync.Mutex
	texts []string
	res   *classify.Result
	err   error
}

func (c *stubClassifier) Classify(_ context.Context, text string) (*classify.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	if c.err != nil {
		return nil, c.err
	}
	return c.res, nil
}

func defaultResult() *classify.Result {
	return &classify.Result{
		Items: []models.AnalysisItem{
			{ID: "i1", ItemText: "Define photosynthesis.", BloomLevel: models.Remember},
			{ID: "i2", ItemText: "Design an experiment.", BloomLevel: models.Create},
		},
		Summary: "Balanced between recall and creation.",
	}
}

func newTestService(t *testing.T, c Classifier) (*Service, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "analyses.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := keyword.NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return NewService(c, store, WithIndex(idx)), store
}

func validInput() models.AnalysisInput {
	return models.AnalysisInput{
		Title:      "Biology quiz",
		Subject:    models.SubjectScience,
		GradeLevel: models.Grade1,
		Text:       "1. Define photosynthesis.\n2. Design an experiment.",
	}
}

func TestService_Analyze(t *testing.T) {
	svc, store := newTestService(t, &stubClassifier{res: defaultResult()})
	ctx := context.Background()

	a, err := svc.Analyze(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == "" || a.AnalysisDate.IsZero() {
		t.Fatalf("expected store-assigned id and date, got %+v", a)
	}
	if a.OriginalDocumentText == "" || a.TextualSummary == "" || len(a.Items) != 2 {
		t.Errorf("analysis = %+v", a)
	}

	stored, err := store.GetAnalysis(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.AnalysisDate.Equal(a.AnalysisDate) {
		t.Errorf("returned date %v differs from stored %v", a.AnalysisDate, stored.AnalysisDate)
	}

	found, err := svc.Search(ctx, "photosynthesis", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != a.ID {
		t.Errorf("search results = %+v", found)
	}
}

func TestService_AnalyzeInvalidInputSkipsClassifier(t *testing.T) {
	c := &stubClassifier{res: defaultResult()}
	svc, _ := newTestService(t, c)
	in := validInput()
	in.Subject = "Alchemy"
	_, err := svc.Analyze(context.Background(), in)
	if KindOf(err) != KindInvalidInput {
		t.Errorf("kind = %s, err = %v", KindOf(err), err)
	}
	if len(c.texts) != 0 {
		t.Error("classifier should not be called for invalid input")
	}
}

func TestService_AnalyzeFailureStoresNothing(t *testing.T) {
	c := &stubClassifier{err: &classify.FailedError{Stage: classify.StageClassify, Err: llm.ErrSafetyBlocked}}
	svc, store := newTestService(t, c)
	ctx := context.Background()

	_, err := svc.Analyze(ctx, validInput())
	if KindOf(err) != KindContentSafetyRejected {
		t.Errorf("kind = %s", KindOf(err))
	}
	if n, _ := store.CountAnalyses(ctx); n != 0 {
		t.Errorf("stored %d analyses after failure", n)
	}
}

func TestService_AnalyzeZeroItemsIsStored(t *testing.T) {
	c := &stubClassifier{res: &classify.Result{Items: []models.AnalysisItem{}, Summary: classify.NoItemsSummary}}
	svc, _ := newTestService(t, c)
	a, err := svc.Analyze(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Items) != 0 || a.TextualSummary != classify.NoItemsSummary {
		t.Errorf("analysis = %+v", a)
	}
	chart, err := svc.Chart(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chart) != 0 {
		t.Errorf("chart for zero items = %v, want empty", chart)
	}
}

func TestService_AnalyzeFile(t *testing.T) {
	c := &stubClassifier{res: defaultResult()}
	svc, _ := newTestService(t, c)
	path := filepath.Join(t.TempDir(), "unit_3-final.txt")
	if err := os.WriteFile(path, []byte("1. Define X."), 0600); err != nil {
		t.Fatal(err)
	}

	a, err := svc.AnalyzeFile(context.Background(), path, models.AnalysisInput{Subject: models.SubjectHistory, GradeLevel: models.Grade3})
	if err != nil {
		t.Fatal(err)
	}
	if a.InstrumentTitle != "unit 3 final" {
		t.Errorf("title = %q", a.InstrumentTitle)
	}
	if c.texts[0] != "1. Define X." {
		t.Errorf("classified text = %q", c.texts[0])
	}
}

func TestService_AnalyzeUploadUnsupported(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{res: defaultResult()})
	_, err := svc.AnalyzeUpload(context.Background(), []byte("x"), "legacy.doc", validInput())
	if KindOf(err) != KindUnsupportedFormat {
		t.Errorf("kind = %s, err = %v", KindOf(err), err)
	}
}

func TestService_HistoryAndConsolidated(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{res: defaultResult()})
	ctx := context.Background()

	for _, in := range []models.AnalysisInput{
		{Title: "Algebra", Subject: models.SubjectMathematics, GradeLevel: models.Grade1, Text: "x"},
		{Title: "Geometry", Subject: models.SubjectMathematics, GradeLevel: models.Grade2, Text: "x"},
		{Title: "Poetry", Subject: models.SubjectLanguage, GradeLevel: models.Grade1, Text: "x"},
	} {
		if _, err := svc.Analyze(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	math, err := svc.History(ctx, report.Criteria{Subject: models.SubjectMathematics})
	if err != nil {
		t.Fatal(err)
	}
	if len(math) != 2 {
		t.Errorf("math history = %d", len(math))
	}

	stats, err := svc.Consolidated(ctx, report.Criteria{Grade: models.Grade1})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Instruments != 2 || stats.TotalItems != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Chart[0].Value != 2 || stats.Chart[0].Percentage != 50 {
		t.Errorf("chart = %+v", stats.Chart)
	}
}

func TestService_Delete(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{res: defaultResult()})
	ctx := context.Background()
	a, err := svc.Analyze(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Errorf("second delete should succeed, got %v", err)
	}
	if _, err := svc.Get(ctx, a.ID); KindOf(err) != KindNotFound {
		t.Errorf("kind after delete = %s", KindOf(err))
	}
	found, _ := svc.Search(ctx, "photosynthesis", 10, nil)
	if len(found) != 0 {
		t.Errorf("deleted analysis still searchable: %+v", found)
	}
}

func TestService_ReindexIfEmpty(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	plain := NewService(&stubClassifier{res: defaultResult()}, store)
	if _, err := plain.Analyze(ctx, validInput()); err != nil {
		t.Fatal(err)
	}
	if _, err := plain.Search(ctx, "x", 10, nil); !errors.Is(err, ErrSearchDisabled) {
		t.Errorf("err = %v, want ErrSearchDisabled", err)
	}

	idx, _ := keyword.NewMemoryBleveIndex()
	defer idx.Close()
	indexed := NewService(&stubClassifier{}, store, WithIndex(idx))
	if err := indexed.ReindexIfEmpty(ctx); err != nil {
		t.Fatal(err)
	}
	st, err := indexed.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Analyses != 1 || st.Indexed != 1 || !st.Search {
		t.Errorf("status = %+v", st)
	}
}

type brokenStore struct{ storage.Storage }

func (brokenStore) CreateAnalysis(context.Context, *models.InstrumentAnalysis) error {
	return errors.New("disk full")
}

func (brokenStore) ListAnalyses(context.Context) ([]*models.InstrumentAnalysis, error) {
	return nil, errors.New("locked")
}

func TestService_persistenceFailures(t *testing.T) {
	svc := NewService(&stubClassifier{res: defaultResult()}, brokenStore{})
	ctx := context.Background()

	_, err := svc.Analyze(ctx, validInput())
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "create" {
		t.Errorf("Analyze error = %v", err)
	}
	if _, err := svc.History(ctx, report.Criteria{}); KindOf(err) != KindPersistenceFailed {
		t.Errorf("History kind = %s", KindOf(err))
	}
}

func TestUserMessage(t *testing.T) {
	safety := &classify.FailedError{Stage: classify.StageSummarize, Err: llm.ErrSafetyBlocked}
	generic := &classify.FailedError{Stage: classify.StageClassify, Err: errors.New("boom")}
	if UserMessage(safety) == UserMessage(generic) {
		t.Error("safety rejection should have a distinct message")
	}
	if !strings.Contains(UserMessage(safety), "safety") {
		t.Errorf("safety message = %q", UserMessage(safety))
	}
	if UserMessage(nil) != "" {
		t.Error("nil error should have no message")
	}
	if KindOf(classify.ErrEmptyInput) != KindEmptyInput || KindOf(classify.ErrMalformedResponse) != KindMalformedResponse {
		t.Error("kind mapping mismatch")
	}
}

func TestUserMessage_appendsCause(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "classification failure",
			err:  &classify.FailedError{Stage: classify.StageClassify, Err: errors.New("quota exceeded for project")},
			want: "Details: quota exceeded for project",
		},
		{
			name: "wrapped classification failure",
			err:  fmt.Errorf("analyze: %w", &classify.FailedError{Stage: classify.StageSummarize, Err: errors.New("connection reset")}),
			want: "Details: connection reset",
		},
		{
			name: "malformed response",
			err:  fmt.Errorf("%w: expected a JSON array (payload: %q)", classify.ErrMalformedResponse, `{"items":[]}`),
			want: `Details: expected a JSON array (payload: "{\"items\":[]}")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("UserMessage() = %q, want it to contain %q", got, tt.want)
			}
		})
	}

	safety := &classify.FailedError{Stage: classify.StageClassify, Err: llm.ErrSafetyBlocked}
	if strings.Contains(UserMessage(safety), "Details:") {
		t.Errorf("safety message should not carry details: %q", UserMessage(safety))
	}
	if got := UserMessage(classify.ErrMalformedResponse); strings.Contains(got, "Details:") {
		t.Errorf("bare malformed error should have no details: %q", got)
	}
}

func TestTitleFromFilename(t *testing.T) {
	if got := TitleFromFilename("/tmp/inbox/Prueba_unidad-2.pdf"); got != "Prueba unidad 2" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("a", 150) + ".txt"
	if got := TitleFromFilename(long); len(got) != models.MaxTitleLength {
		t.Errorf("title length = %d", len(got))
	}
}
