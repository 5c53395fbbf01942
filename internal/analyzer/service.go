// Package analyzer coordinates classification, persistence and search of instrument analyses.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/classify"
	"github.com/hyperjump/taxonomia/internal/extract"
	"github.com/hyperjump/taxonomia/internal/keyword"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/internal/report"
	"github.com/hyperjump/taxonomia/internal/storage"
	"github.com/hyperjump/taxonomia/pkg/utils"
)

// Classifier turns instrument text into classified items and a summary.
type Classifier interface {
	Classify(ctx context.Context, text string) (*classify.Result, error)
}

// Service runs analyses and serves the stored history. Operations that call the model
// or change the store run one at a time.
type Service struct {
	classifier Classifier
	store      storage.Storage
	index      keyword.AnalysisIndex
	extractor  *extract.Extractor
	logger     *zap.Logger

	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithIndex enables full-text search over analyses.
func WithIndex(index keyword.AnalysisIndex) Option {
	return func(s *Service) {
		s.index = index
	}
}

// WithExtractor sets the file text extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// NewService creates a Service.
func NewService(classifier Classifier, store storage.Storage, opts ...Option) *Service {
	s := &Service{classifier: classifier, store: store}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.LoggerOrNop(s.logger)
	if s.extractor == nil {
		s.extractor = extract.NewExtractor()
	}
	return s
}

// Analyze validates in, classifies its text and stores the result. The returned analysis
// carries the store-assigned ID and timestamp. Nothing is stored on failure.
func (s *Service) Analyze(ctx context.Context, in models.AnalysisInput) (*models.InstrumentAnalysis, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.classifier.Classify(ctx, in.Text)
	if err != nil {
		s.logger.Warn("analysis failed",
			zap.String("title", in.Title),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	a := &models.InstrumentAnalysis{
		InstrumentTitle:      in.Title,
		Subject:              in.Subject,
		GradeLevel:           in.GradeLevel,
		Items:                res.Items,
		TextualSummary:       res.Summary,
		OriginalDocumentText: in.Text,
	}
	if err := s.store.CreateAnalysis(ctx, a); err != nil {
		s.logger.Error("failed to store analysis", zap.String("title", in.Title), zap.Error(err))
		return nil, &PersistenceError{Op: "create", Err: err}
	}
	s.indexAnalysis(ctx, a)

	s.logger.Info("analysis stored",
		zap.String("id", a.ID),
		zap.String("subject", string(a.Subject)),
		zap.String("grade", string(a.GradeLevel)),
		zap.Int("items", len(a.Items)))
	return a, nil
}

// AnalyzeFile extracts the text of the file at path and analyzes it. An empty title
// defaults to the file name without extension.
func (s *Service) AnalyzeFile(ctx context.Context, path string, meta models.AnalysisInput) (*models.InstrumentAnalysis, error) {
	text, err := s.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	meta.Text = text
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = TitleFromFilename(path)
	}
	return s.Analyze(ctx, meta)
}

// AnalyzeUpload is AnalyzeFile for in-memory content named filename.
func (s *Service) AnalyzeUpload(ctx context.Context, content []byte, filename string, meta models.AnalysisInput) (*models.InstrumentAnalysis, error) {
	text, err := s.extractor.ExtractBytes(content, strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	meta.Text = text
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = TitleFromFilename(filename)
	}
	return s.Analyze(ctx, meta)
}

// TitleFromFilename derives an instrument title from a file name, capped at the title limit.
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	title = strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(title)), " ")
	if r := []rune(title); len(r) > models.MaxTitleLength {
		title = string(r[:models.MaxTitleLength])
	}
	return title
}

// History returns stored analyses matching c, newest first.
func (s *Service) History(ctx context.Context, c report.Criteria) ([]*models.InstrumentAnalysis, error) {
	all, err := s.store.ListAnalyses(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return report.Filter(all, c), nil
}

// Consolidated returns the level distribution over every item of the analyses matching c.
func (s *Service) Consolidated(ctx context.Context, c report.Criteria) (*report.Consolidated, error) {
	all, err := s.store.ListAnalyses(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return report.Consolidate(all, c), nil
}

// Get returns one analysis.
func (s *Service) Get(ctx context.Context, id string) (*models.InstrumentAnalysis, error) {
	a, err := s.store.GetAnalysis(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return a, nil
}

// Chart returns the level distribution of one analysis.
func (s *Service) Chart(ctx context.Context, id string) ([]models.ChartDataPoint, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return report.Aggregate(a.Items), nil
}

// Delete removes an analysis. Deleting an unknown ID succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteAnalysis(ctx, id); err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to remove analysis from index", zap.String("id", id), zap.Error(err))
		}
	}
	s.logger.Info("analysis deleted", zap.String("id", id))
	return nil
}

// ErrSearchDisabled is returned by Search when no index is configured.
var ErrSearchDisabled = errors.New("full-text search is not enabled")

// Search returns analyses whose title, metadata, summary or items match query, best first.
func (s *Service) Search(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) ([]*models.InstrumentAnalysis, error) {
	if s.index == nil {
		return nil, ErrSearchDisabled
	}
	hits, err := s.index.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*models.InstrumentAnalysis, 0, len(hits))
	for _, hit := range hits {
		a, err := s.store.GetAnalysis(ctx, hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("stale index entry", zap.String("id", hit.ID))
			continue
		}
		if err != nil {
			return nil, &PersistenceError{Op: "get", Err: err}
		}
		out = append(out, a)
	}
	return out, nil
}

// Reindex indexes every stored analysis. It is a no-op without an index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.ListAnalyses(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "list", Err: err}
	}
	for _, a := range all {
		if err := s.index.Index(ctx, a); err != nil {
			return 0, fmt.Errorf("index %s: %w", a.ID, err)
		}
	}
	s.logger.Info("reindexed analyses", zap.Int("count", len(all)))
	return len(all), nil
}

// ReindexIfEmpty rebuilds the index when it holds no documents but the store does.
func (s *Service) ReindexIfEmpty(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	n, err := s.index.DocCount()
	if err != nil {
		return fmt.Errorf("index doc count: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.Reindex(ctx)
	return err
}

// Status summarizes the stored history.
type Status struct {
	Analyses int64  `json:"analyses"`
	Indexed  uint64 `json:"indexed"`
	Search   bool   `json:"search_enabled"`
}

// Status reports counts from the store and the index.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	n, err := s.store.CountAnalyses(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "count", Err: err}
	}
	st := &Status{Analyses: n}
	if s.index != nil {
		st.Search = true
		if st.Indexed, err = s.index.DocCount(); err != nil {
			return nil, fmt.Errorf("index doc count: %w", err)
		}
	}
	return st, nil
}

func (s *Service) indexAnalysis(ctx context.Context, a *models.InstrumentAnalysis) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, a); err != nil {
		s.logger.Warn("failed to index analysis", zap.String("id", a.ID), zap.Error(err))
	}
}
