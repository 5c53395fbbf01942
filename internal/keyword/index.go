// Package keyword provides full-text indexing and search over stored analyses.
package keyword

import (
	"context"

	"github.com/hyperjump/taxonomia/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score of matches in the instrument title. Use 1.0 for no boost.
	TitleBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// AnalysisIndex defines keyword search operations over analyses.
type AnalysisIndex interface {
	Index(ctx context.Context, a *models.InstrumentAnalysis) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the number of indexed analyses.
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
