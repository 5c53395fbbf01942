// Package classify turns instrument text into Bloom-classified items and a summary using a language model.
package classify

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/llm"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/pkg/utils"
)

// NoItemsSummary is the summary of an instrument with no classifiable items.
const NoItemsSummary = "No classifiable items found."

// Result is the output of one successful pipeline run.
type Result struct {
	Items   []models.AnalysisItem
	Summary string
}

// Pipeline runs classification then summarization. It never retries and never returns partial results.
type Pipeline struct {
	client  llm.Client
	prompts Prompts
	ids     IDGenerator
	logger  *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPrompts overrides the default prompt temperatures.
func WithPrompts(prompts Prompts) Option {
	return func(p *Pipeline) {
		p.prompts = prompts
	}
}

// WithIDGenerator sets the item ID source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(p *Pipeline) {
		p.ids = ids
	}
}

// NewPipeline creates a pipeline calling client.
func NewPipeline(client llm.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:  client,
		prompts: DefaultPrompts(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.LoggerOrNop(p.logger)
	if p.ids == nil {
		p.ids = NewSequenceIDs()
	}
	return p
}

// Classify splits text into items, classifies them, and summarizes the distribution.
// Empty text fails with ErrEmptyInput before any model call; zero items skip the summary call.
func (p *Pipeline) Classify(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	raw, err := p.client.Generate(ctx, p.prompts.BuildClassificationRequest(text))
	if err != nil {
		p.logger.Error("classification call failed", zap.String("client", p.client.Name()), zap.Error(err))
		return nil, &FailedError{Stage: StageClassify, Err: err}
	}

	items, err := Normalize(raw, p.ids, p.logger)
	if err != nil {
		p.logger.Error("classification response rejected", zap.Error(err))
		return nil, err
	}

	if len(items) == 0 {
		p.logger.Info("no classifiable items", zap.Duration("elapsed", time.Since(start)))
		return &Result{Items: items, Summary: NoItemsSummary}, nil
	}

	summary, err := p.client.Generate(ctx, p.prompts.BuildSummaryRequest(items))
	if err == nil && strings.TrimSpace(summary) == "" {
		err = errors.New("summary is empty")
	}
	if err != nil {
		p.logger.Error("summary call failed", zap.String("client", p.client.Name()), zap.Error(err))
		return nil, &FailedError{Stage: StageSummarize, Err: err}
	}

	p.logger.Info("instrument classified",
		zap.Int("items", len(items)),
		zap.Duration("elapsed", time.Since(start)))
	return &Result{Items: items, Summary: strings.TrimSpace(summary)}, nil
}
