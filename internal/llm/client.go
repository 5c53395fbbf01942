// Package llm wraps the hosted language model providers behind a single text-generation interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/config"
)

// ErrSafetyBlocked is returned when the provider refuses a prompt or a completion on content-safety grounds.
var ErrSafetyBlocked = errors.New("content blocked by provider safety filters")

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from model")

// Request is a single-turn generation request.
type Request struct {
	Prompt      string
	Temperature float64
	// JSON asks the provider for a JSON document instead of free text.
	JSON bool
	// Schema is optional; providers without schema enforcement ignore it.
	Schema *Schema
}

// Client generates text for a prompt. Implementations do not retry.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Option configures a provider client.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	timeout   time.Duration
	maxTokens int
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTimeout bounds each Generate call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		o.maxTokens = n
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), maxTokens: 8192}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func (o options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for provider %q: set llm.api_key or $%s", cfg.Provider, cfg.APIKeyEnv)
	}
	opts := []Option{
		WithLogger(logger),
		WithTimeout(cfg.Timeout),
		WithMaxTokens(cfg.MaxOutputTokens),
	}
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderGemini, "":
		return NewGeminiClient(ctx, apiKey, cfg.Model, opts...)
	case config.ProviderAnthropic:
		return NewAnthropicClient(apiKey, cfg.Model, opts...), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(apiKey, cfg.Model, opts...), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// Schema describes a structured JSON response for providers that enforce one.
// Structured output must be an object, so an array answer is wrapped in a single field.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]interface{}
	// ArrayField, when set, names the object field whose value is returned in place of the whole object.
	ArrayField string
}
