// Package models defines the taxonomy, curriculum and analysis records shared across packages.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength is the maximum number of characters in an instrument title.
const MaxTitleLength = 100

// ErrInvalidInput is returned by Validate for missing or out-of-list metadata.
var ErrInvalidInput = errors.New("invalid input")

// AnalysisItem is one evaluable question or task and its assigned level.
type AnalysisItem struct {
	ID         string     `json:"id"`
	ItemText   string     `json:"item_text"`
	BloomLevel BloomLevel `json:"bloom_level"`
}

// InstrumentAnalysis is a persisted classification of an assessment instrument.
// ID and AnalysisDate are assigned by the store.
type InstrumentAnalysis struct {
	ID                   string         `json:"id"`
	InstrumentTitle      string         `json:"instrumentTitle"`
	Subject              Subject        `json:"subject"`
	GradeLevel           GradeLevel     `json:"gradeLevel"`
	Items                []AnalysisItem `json:"items"`
	TextualSummary       string         `json:"textualSummary"`
	AnalysisDate         time.Time      `json:"analysisDate"`
	OriginalDocumentText string         `json:"originalDocumentText,omitempty"`
}

// ChartDataPoint is the count and share of one level within a set of items.
type ChartDataPoint struct {
	Name       BloomLevel `json:"name"`
	Value      int        `json:"value"`
	Percentage float64    `json:"percentage"`
}

// AnalysisInput is the user-supplied request for a new analysis.
type AnalysisInput struct {
	Title      string     `json:"title"`
	Subject    Subject    `json:"subject"`
	GradeLevel GradeLevel `json:"grade_level"`
	Text       string     `json:"text"`
}

// Validate checks the instrument metadata and trims the title.
// Text is not checked here; an empty text is reported by the classifier.
func (in *AnalysisInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, MaxTitleLength)
	}
	if !in.Subject.IsValid() {
		return fmt.Errorf("%w: unknown subject %q", ErrInvalidInput, in.Subject)
	}
	if !in.GradeLevel.IsValid() {
		return fmt.Errorf("%w: unknown grade level %q", ErrInvalidInput, in.GradeLevel)
	}
	return nil
}
