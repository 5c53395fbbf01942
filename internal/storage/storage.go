// Package storage defines the persistence interface for instrument analyses.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/taxonomia/internal/models"
)

// ErrNotFound is returned when no analysis has the requested ID.
var ErrNotFound = errors.New("analysis not found")

// Storage persists analyses. Implementations assign IDs and timestamps on create.
type Storage interface {
	// CreateAnalysis stores a and sets its ID and AnalysisDate.
	CreateAnalysis(ctx context.Context, a *models.InstrumentAnalysis) error
	GetAnalysis(ctx context.Context, id string) (*models.InstrumentAnalysis, error)
	// ListAnalyses returns every analysis, newest first.
	ListAnalyses(ctx context.Context) ([]*models.InstrumentAnalysis, error)
	// DeleteAnalysis removes an analysis. Deleting a missing ID is not an error.
	DeleteAnalysis(ctx context.Context, id string) error

	CountAnalyses(ctx context.Context) (int64, error)

	Close() error
}
