package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/taxonomia/internal/models"
)

const defaultTitleBoost = 3.0

var searchFields = []string{"title", "subject", "grade", "summary", "items"}

// analysisDoc is the indexed projection of an analysis.
type analysisDoc struct {
	Title   string `json:"title"`
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
	Summary string `json:"summary"`
	Items   string `json:"items"`
}

func toDoc(a *models.InstrumentAnalysis) analysisDoc {
	texts := make([]string, len(a.Items))
	for i, it := range a.Items {
		texts[i] = it.ItemText
	}
	return analysisDoc{
		Title:   a.InstrumentTitle,
		Subject: string(a.Subject),
		Grade:   string(a.GradeLevel),
		Summary: a.TextualSummary,
		Items:   strings.Join(texts, "\n"),
	}
}

// BleveIndex implements AnalysisIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory and reindex.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryBleveIndex creates an in-memory index, for tests and throwaway runs.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases and tokenizes without stemming, which keeps Spanish and English terms intact.
	textFieldMapping.Analyzer = standard.Name
	for _, f := range searchFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	im.AddDocumentMapping("analysis", docMapping)
	im.DefaultType = "analysis"
	im.DefaultMapping = docMapping
	return im
}

// Index adds or replaces a.
func (b *BleveIndex) Index(ctx context.Context, a *models.InstrumentAnalysis) error {
	if a.ID == "" {
		return fmt.Errorf("cannot index analysis without ID")
	}
	return b.index.Index(a.ID, toDoc(a))
}

// Search returns up to limit analyses matching query in any field, title matches boosted.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	titleBoost := defaultTitleBoost
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	fieldQueries := make([]blevequery.Query, 0, len(searchFields))
	for _, field := range searchFields {
		boost := 1.0
		if field == "title" {
			boost = titleBoost
		}
		fieldQueries = append(fieldQueries, fieldQuery(query, field, boost, fuzzy, fuzziness))
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(fieldQueries...))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// fieldQuery builds a match query on field, or a disjunction of per-term fuzzy queries.
func fieldQuery(query, field string, boost float64, fuzzy bool, fuzziness int) blevequery.Query {
	if !fuzzy {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	terms := strings.Fields(strings.ToLower(query))
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes an analysis from the index. Missing IDs are ignored.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the number of indexed analyses.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
