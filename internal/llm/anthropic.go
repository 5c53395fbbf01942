package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	jsonOnlyInstruction   = "Respond only with valid JSON. Do not add prose or markdown around it."
)

// AnthropicClient generates text with the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
	opts   options
}

// NewAnthropicClient creates an Anthropic client for model.
func NewAnthropicClient(apiKey, model string, opts ...Option) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		opts:   buildOptions(opts),
	}
}

// Name returns the provider and model.
func (c *AnthropicClient) Name() string {
	return "anthropic/" + c.model
}

// Generate sends a single-turn prompt.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := c.opts.withTimeout(ctx)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.opts.maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.JSON {
		params.System = []anthropic.TextBlockParam{{Text: jsonOnlyInstruction}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}
	if string(message.StopReason) == "refusal" {
		c.opts.logger.Warn("anthropic refused prompt", zap.String("model", c.model))
		return "", ErrSafetyBlocked
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	c.opts.logger.Debug("anthropic response",
		zap.String("model", c.model),
		zap.Int64("tokens_in", message.Usage.InputTokens),
		zap.Int64("tokens_out", message.Usage.OutputTokens))
	return text, nil
}
